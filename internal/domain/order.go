package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrder builds a pending order against the quoted unit price. The total is
// fixed here and never re-read at confirmation time, so the buyer pays what
// they were shown.
func NewOrder(tt TicketType, quantity int, buyerEmail, buyerName string, now time.Time) (Order, error) {
	if quantity <= 0 {
		return Order{}, ErrInvalidInput
	}
	buyerEmail = strings.TrimSpace(buyerEmail)
	if buyerEmail == "" || !strings.Contains(buyerEmail, "@") {
		return Order{}, ErrInvalidInput
	}
	return Order{
		ID:           uuid.New(),
		EventID:      tt.EventID,
		TicketTypeID: tt.ID,
		Quantity:     quantity,
		BuyerEmail:   buyerEmail,
		BuyerName:    strings.TrimSpace(buyerName),
		TotalAmount:  tt.UnitPrice * int64(quantity),
		Currency:     tt.Currency,
		Status:       OrderStatusPending,
		Meta:         map[string]bool{},
		CreatedAt:    now,
	}, nil
}

// PaymentRef is the idempotency-keyed reference sent to the gateway when a
// checkout session is initialized. It embeds the order id so the eventual
// webhook round-trips back to the order.
func (o Order) PaymentRef() string {
	return "order-" + o.ID.String()
}

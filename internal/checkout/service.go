package checkout

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
	"github.com/robertarktes/event-ticket-payments/internal/paystack"
)

const txRetries = 3

// Store is the transactional persistence the checkout pipeline needs. Every
// method is atomic on its own; the implementations push all coordination
// into the database.
type Store interface {
	GetTicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (domain.Order, bool, error)
	IssueTickets(ctx context.Context, order domain.Order, tickets []domain.Ticket) ([]domain.Ticket, bool, error)
	TicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error)
	MarkFulfillmentFailed(ctx context.Context, orderID uuid.UUID) error
}

type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeTransactionRequest) (paystack.InitializeTransactionResponse, error)
}

type Service struct {
	store       Store
	gateway     Gateway
	callbackURL string
	logger      observability.Logger
	now         func() time.Time
}

func NewService(store Store, gateway Gateway, callbackURL string, logger observability.Logger) *Service {
	return &Service{
		store:       store,
		gateway:     gateway,
		callbackURL: callbackURL,
		logger:      logger,
		now:         time.Now,
	}
}

type CheckoutInput struct {
	EventID      uuid.UUID
	TicketTypeID uuid.UUID
	Quantity     int
	BuyerEmail   string
	BuyerName    string
}

type CheckoutResult struct {
	Order       domain.Order
	RedirectURL string
}

// Checkout creates a pending order against the quoted price and opens a
// hosted payment session. Inventory is not reserved here; that happens at
// issuance time, after payment. The quote-time availability check only
// turns away buyers of an already sold-out pool early.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	tt, err := s.store.GetTicketType(ctx, in.TicketTypeID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if in.EventID != tt.EventID {
		return CheckoutResult{}, domain.ErrInvalidInput
	}
	if tt.Quantity-tt.Sold < in.Quantity {
		return CheckoutResult{}, domain.ErrInsufficientInventory
	}

	order, err := domain.NewOrder(tt, in.Quantity, in.BuyerEmail, in.BuyerName, s.now())
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return CheckoutResult{}, err
	}

	session, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeTransactionRequest{
		Reference:   order.PaymentRef(),
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Email:       order.BuyerEmail,
		CallbackURL: s.callbackURL,
		Metadata:    map[string]string{"order_id": order.ID.String()},
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	return CheckoutResult{Order: order, RedirectURL: session.AuthorizationURL}, nil
}

// ConfirmPaid transitions the order to paid. It is idempotent: a replayed
// webhook finds the order already paid and gets it back unchanged with
// transitioned=false.
func (s *Service) ConfirmPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) (domain.Order, bool, error) {
	var order domain.Order
	var transitioned bool
	err := s.retrySerialization(ctx, func() error {
		var err error
		order, transitioned, err = s.store.MarkPaid(ctx, orderID, paymentRef)
		return err
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	if transitioned {
		observability.OrdersPaid.Inc()
	}
	return order, transitioned, nil
}

// Issue creates one ticket per purchased seat, exactly once per order, and
// reserves inventory at this point. If the pool sold out between payment
// and issuance the failure is durably recorded for manual reconciliation;
// tickets are never fabricated against oversold inventory.
func (s *Service) Issue(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, bool, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if order.Status != domain.OrderStatusPaid {
		return nil, false, domain.ErrOrderNotPaid
	}
	if order.Flag(domain.MetaTicketsIssued) {
		tickets, err := s.store.TicketsByOrder(ctx, orderID)
		return tickets, false, err
	}

	tickets, err := domain.NewTickets(order)
	if err != nil {
		return nil, false, err
	}

	var issued []domain.Ticket
	var created bool
	err = s.retrySerialization(ctx, func() error {
		var err error
		issued, created, err = s.store.IssueTickets(ctx, order, tickets)
		return err
	})
	if errors.Is(err, domain.ErrInsufficientInventory) {
		if markErr := s.store.MarkFulfillmentFailed(ctx, orderID); markErr != nil {
			s.logger.WithField("order_id", orderID.String()).Error("failed to record fulfillment failure", markErr)
		}
		s.logger.WithField("order_id", orderID.String()).Error("paid order could not be fulfilled, sold out")
		return nil, false, errors.Mark(err, domain.ErrFulfillmentFailed)
	}
	if err != nil {
		return nil, false, err
	}
	if created {
		observability.TicketsIssued.Add(float64(len(issued)))
	}
	return issued, created, nil
}

// ProcessChargeSuccess is the webhook entry point for a successful payment:
// confirm the order, then issue its tickets. Both halves are idempotent, so
// at-least-once delivery of the same event converges on one paid order and
// one ticket set.
func (s *Service) ProcessChargeSuccess(ctx context.Context, charge paystack.ChargeData) error {
	_, _, err := s.ConfirmPaid(ctx, charge.OrderID, charge.Reference)
	if err != nil {
		return err
	}
	_, _, err = s.Issue(ctx, charge.OrderID)
	return err
}

func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, []domain.Ticket, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	tickets, err := s.store.TicketsByOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, tickets, nil
}

func (s *Service) retrySerialization(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < txRetries; i++ {
		err = fn()
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1<<i) * 10 * time.Millisecond):
		}
	}
	return err
}

package domain

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 12
)

// NewTicketCode returns a random redemption code drawn from a 36^12 space,
// large enough that collisions across any realistic ticket volume are
// negligible and brute-force redemption is impractical. The tickets table
// still carries a unique constraint on code as a backstop.
func NewTicketCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// NewTickets produces one ticket per purchased seat for a paid order. Seat
// indexes are dense from zero; together with the (order_id, seat_index)
// uniqueness constraint they make issuance idempotent at the store.
func NewTickets(order Order) ([]Ticket, error) {
	tickets := make([]Ticket, order.Quantity)
	for i := range tickets {
		code, err := NewTicketCode()
		if err != nil {
			return nil, err
		}
		tickets[i] = Ticket{
			ID:               uuid.New(),
			OrderID:          order.ID,
			TicketTypeID:     order.TicketTypeID,
			SeatIndex:        i,
			Code:             code,
			ValidationStatus: TicketValid,
		}
	}
	return tickets, nil
}

package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewTicketCode(t *testing.T) {
	t.Parallel()

	code, err := NewTicketCode()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(code) != codeLength {
		t.Fatalf("expected code length %d, got %d", codeLength, len(code))
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			t.Fatalf("code %q contains character outside alphabet", code)
		}
	}
}

func TestNewTicketCode_NoCollisions(t *testing.T) {
	t.Parallel()

	const n = 100000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		code, err := NewTicketCode()
		if err != nil {
			t.Fatal(err)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q after %d generations", code, i)
		}
		seen[code] = struct{}{}
	}
}

func TestNewTickets(t *testing.T) {
	t.Parallel()

	tt := TicketType{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		UnitPrice: 5000,
		Currency:  "NGN",
		Quantity:  10,
	}
	order, err := NewOrder(tt, 3, "buyer@example.com", "Ada", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	order.Status = OrderStatusPaid

	tickets, err := NewTickets(order)
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets))
	}
	codes := map[string]struct{}{}
	for i, ticket := range tickets {
		if ticket.SeatIndex != i {
			t.Errorf("expected seat index %d, got %d", i, ticket.SeatIndex)
		}
		if ticket.OrderID != order.ID {
			t.Errorf("ticket %d bound to wrong order", i)
		}
		if ticket.ValidationStatus != TicketValid {
			t.Errorf("expected new ticket to be VALID, got %s", ticket.ValidationStatus)
		}
		codes[ticket.Code] = struct{}{}
	}
	if len(codes) != 3 {
		t.Errorf("expected 3 distinct codes, got %d", len(codes))
	}
}

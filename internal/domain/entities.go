package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusPaid    OrderStatus = "PAID"
)

type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "PENDING"
	PayoutStatusApproved PayoutStatus = "APPROVED"
	PayoutStatusRejected PayoutStatus = "REJECTED"
)

type ValidationStatus string

const (
	TicketValid ValidationStatus = "VALID"
	TicketUsed  ValidationStatus = "USED"
)

// Meta flag keys stored in orders.meta. Each is one-way: once set it is never
// cleared.
const (
	MetaTicketsIssued     = "tickets_issued"
	MetaReminderSent      = "reminder_sent"
	MetaFulfillmentFailed = "fulfillment_failed"
)

// Event carries only the owner linkage the payout ledger needs. Catalog
// detail (venue, dates, images) lives outside this service.
type Event struct {
	ID       uuid.UUID
	OwnerID  uuid.UUID
	Name     string
	Currency string
}

// TicketType is a priced inventory pool. Sold is mutated only through the
// inventory ledger's reserve/release; 0 <= Sold <= Quantity always holds.
type TicketType struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	Name      string
	UnitPrice int64 // minor units
	Currency  string
	Quantity  int
	Sold      int
}

type Order struct {
	ID               uuid.UUID
	EventID          uuid.UUID
	TicketTypeID     uuid.UUID
	Quantity         int
	BuyerEmail       string
	BuyerName        string
	TotalAmount      int64 // minor units, quoted at creation
	Currency         string
	Status           OrderStatus
	PaymentReference string
	Meta             map[string]bool
	CreatedAt        time.Time
}

func (o Order) Flag(key string) bool {
	return o.Meta[key]
}

type Ticket struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	TicketTypeID     uuid.UUID
	SeatIndex        int
	Code             string
	ValidationStatus ValidationStatus
}

type PayoutRequest struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	Amount            int64 // minor units
	Currency          string
	Status            PayoutStatus
	TransferReference string
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

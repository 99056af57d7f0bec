package paystack

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Webhook event types this service acts on. Everything else decodes to
// UnknownEvent and is acknowledged without side effects.
const (
	EventChargeSuccess  = "charge.success"
	EventTransferOK     = "transfer.success"
	EventTransferFailed = "transfer.failed"
)

// Event is one decoded webhook delivery. Exactly one of the variant fields
// is set, matching Type.
type Event struct {
	Type     string
	ID       string
	Charge   *ChargeData
	Transfer *TransferData
}

type ChargeData struct {
	Reference string
	Amount    int64
	Currency  string
	OrderID   uuid.UUID
}

type TransferData struct {
	Reference string
	Amount    int64
	Status    string
}

type rawEvent struct {
	Event string `json:"event"`
	ID    string `json:"id"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		Metadata  struct {
			OrderID string `json:"order_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body into the closed variant set.
// It must only be called after Verifier.Verify has accepted the raw bytes.
func ParseEvent(rawBody []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return Event{}, err
	}

	ev := Event{Type: raw.Event, ID: raw.ID}
	switch raw.Event {
	case EventChargeSuccess:
		orderID, err := uuid.Parse(raw.Data.Metadata.OrderID)
		if err != nil {
			return Event{}, err
		}
		ev.Charge = &ChargeData{
			Reference: raw.Data.Reference,
			Amount:    raw.Data.Amount,
			Currency:  raw.Data.Currency,
			OrderID:   orderID,
		}
	case EventTransferOK, EventTransferFailed:
		ev.Transfer = &TransferData{
			Reference: raw.Data.Reference,
			Amount:    raw.Data.Amount,
			Status:    raw.Data.Status,
		}
	default:
		// Unknown event, acknowledged and ignored.
	}
	return ev, nil
}

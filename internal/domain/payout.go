package domain

import (
	"time"

	"github.com/google/uuid"
)

func NewPayoutRequest(ownerID uuid.UUID, amount int64, currency string, now time.Time) (PayoutRequest, error) {
	if amount <= 0 || currency == "" {
		return PayoutRequest{}, ErrInvalidInput
	}
	return PayoutRequest{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Amount:    amount,
		Currency:  currency,
		Status:    PayoutStatusPending,
		CreatedAt: now,
	}, nil
}

// TransferRef is the idempotency-keyed reference for the gateway transfer, so
// a retried initiation cannot move money twice.
func (p PayoutRequest) TransferRef() string {
	return "payout-" + p.ID.String()
}

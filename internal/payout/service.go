package payout

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/robertarktes/event-ticket-payments/internal/notify"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
	"github.com/robertarktes/event-ticket-payments/internal/paystack"
)

const txRetries = 3

// Store persists payout requests. CreatePayout must check the derived
// balance and insert the row in one transaction; the service never reads
// the balance separately before writing.
type Store interface {
	CreatePayout(ctx context.Context, payout domain.PayoutRequest) error
	AvailableBalance(ctx context.Context, ownerID uuid.UUID, currency string) (int64, error)
	GetPayout(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error)
	TransitionPayout(ctx context.Context, id uuid.UUID, from, to domain.PayoutStatus, transferRef string, resolvedAt *time.Time) (domain.PayoutRequest, error)
}

type Gateway interface {
	InitiateTransfer(ctx context.Context, req paystack.TransferRequest) (paystack.TransferResponse, error)
}

// Notifier fires user-visible side effects after the financial state has
// committed. Implementations must never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload map[string]interface{})
}

type Service struct {
	store    Store
	gateway  Gateway
	notifier Notifier
	logger   observability.Logger
	now      func() time.Time
}

func NewService(store Store, gateway Gateway, notifier Notifier, logger observability.Logger) *Service {
	return &Service{store: store, gateway: gateway, notifier: notifier, logger: logger, now: time.Now}
}

func (s *Service) AvailableBalance(ctx context.Context, ownerID uuid.UUID, currency string) (int64, error) {
	return s.store.AvailableBalance(ctx, ownerID, currency)
}

// Request reserves amount against the owner's available balance. Under
// concurrent requests at most the available balance ever ends up reserved;
// the loser of the race gets ErrInsufficientBalance.
func (s *Service) Request(ctx context.Context, ownerID uuid.UUID, amount int64, currency string) (domain.PayoutRequest, error) {
	payout, err := domain.NewPayoutRequest(ownerID, amount, currency, s.now())
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	err = s.retrySerialization(ctx, func() error {
		return s.store.CreatePayout(ctx, payout)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	observability.PayoutsRequested.Inc()
	return payout, nil
}

// Approve moves the request to approved and initiates the gateway transfer.
// Approval only sticks once the gateway has accepted the transfer; a
// refusal reverts the request to pending so no money is marked as moving
// when none did.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error) {
	resolvedAt := s.now()
	payout, err := s.store.GetPayout(ctx, id)
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	payout, err = s.store.TransitionPayout(ctx, id, domain.PayoutStatusPending, domain.PayoutStatusApproved, payout.TransferRef(), &resolvedAt)
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	_, err = s.gateway.InitiateTransfer(ctx, paystack.TransferRequest{
		Reference: payout.TransferReference,
		Amount:    payout.Amount,
		Currency:  payout.Currency,
		Recipient: payout.OwnerID.String(),
		Reason:    "ticket revenue payout",
	})
	if err != nil {
		s.logger.WithField("payout_id", id.String()).Error("transfer initiation failed, reverting approval", err)
		if _, revertErr := s.store.TransitionPayout(ctx, id, domain.PayoutStatusApproved, domain.PayoutStatusPending, "", nil); revertErr != nil {
			// The request is stuck approved with no transfer; surface loudly.
			s.logger.WithField("payout_id", id.String()).Error("failed to revert payout approval", revertErr)
		}
		return domain.PayoutRequest{}, errors.Mark(err, domain.ErrGatewayUnavailable)
	}

	s.notifier.Notify(ctx, notify.EventPayoutApproved, map[string]interface{}{
		"payout_id": payout.ID,
		"owner_id":  payout.OwnerID,
		"amount":    payout.Amount,
		"currency":  payout.Currency,
	})
	return payout, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error) {
	resolvedAt := s.now()
	payout, err := s.store.TransitionPayout(ctx, id, domain.PayoutStatusPending, domain.PayoutStatusRejected, "", &resolvedAt)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	s.notifier.Notify(ctx, notify.EventPayoutRejected, map[string]interface{}{
		"payout_id": payout.ID,
		"owner_id":  payout.OwnerID,
	})
	return payout, nil
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

package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/robertarktes/event-ticket-payments/internal/notify"
)

// CreatePayout computes the owner's available balance and inserts the new
// request inside one SERIALIZABLE transaction. Two concurrent requests
// against the same revenue pool cannot both read a stale balance: one of
// them retries on 40001 and then sees the other's reservation.
func (r *Repository) CreatePayout(ctx context.Context, payout domain.PayoutRequest) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		// An owner's revenue pool is single-currency; a request in any
		// other currency is a caller mistake, not an empty balance.
		var ownerEvents, currencyEvents int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE currency = $2)
			FROM events WHERE owner_id = $1
		`, payout.OwnerID, payout.Currency).Scan(&ownerEvents, &currencyEvents)
		if err != nil {
			return err
		}
		if ownerEvents > 0 && currencyEvents == 0 {
			return domain.ErrCurrencyMismatch
		}

		available, err := availableBalanceTx(ctx, tx, payout.OwnerID, payout.Currency)
		if err != nil {
			return err
		}
		if payout.Amount > available {
			return domain.ErrInsufficientBalance
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO payout_requests (id, owner_id, amount, currency, status, transfer_reference, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, payout.ID, payout.OwnerID, payout.Amount, payout.Currency, payout.Status, payout.TransferReference, payout.CreatedAt)
		if err != nil {
			return err
		}

		return r.insertOutbox(ctx, tx, outboxRecord{
			AggregateType: "payout",
			AggregateID:   payout.ID,
			EventType:     notify.EventPayoutRequested,
			Payload: map[string]interface{}{
				"payout_id": payout.ID,
				"owner_id":  payout.OwnerID,
				"amount":    payout.Amount,
				"currency":  payout.Currency,
			},
		})
	})
}

// AvailableBalance is derived, never stored: confirmed revenue minus
// payouts that are still reserving it (pending or approved).
func (r *Repository) AvailableBalance(ctx context.Context, ownerID uuid.UUID, currency string) (int64, error) {
	var available int64
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		available, err = availableBalanceTx(ctx, tx, ownerID, currency)
		return err
	})
	return available, err
}

func availableBalanceTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency string) (int64, error) {
	var revenue int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(o.total_amount), 0)
		FROM orders o
		JOIN events e ON o.event_id = e.id
		WHERE e.owner_id = $1 AND o.status = $2 AND o.currency = $3
	`, ownerID, domain.OrderStatusPaid, currency).Scan(&revenue)
	if err != nil {
		return 0, err
	}

	var reserved int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payout_requests
		WHERE owner_id = $1 AND currency = $2 AND status IN ($3, $4)
	`, ownerID, currency, domain.PayoutStatusPending, domain.PayoutStatusApproved).Scan(&reserved)
	if err != nil {
		return 0, err
	}

	return revenue - reserved, nil
}

func (r *Repository) GetPayout(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error) {
	var p domain.PayoutRequest
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, amount, currency, status, transfer_reference, created_at, resolved_at
		FROM payout_requests WHERE id = $1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Amount, &p.Currency, &p.Status, &p.TransferReference, &p.CreatedAt, &p.ResolvedAt)
	if err == pgx.ErrNoRows {
		return domain.PayoutRequest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	return p, nil
}

// TransitionPayout moves a request from one status to another only if it is
// still in the expected state, so approve/reject and the revert after a
// refused transfer are all race-safe conditional updates.
func (r *Repository) TransitionPayout(ctx context.Context, id uuid.UUID, from, to domain.PayoutStatus, transferRef string, resolvedAt *time.Time) (domain.PayoutRequest, error) {
	var p domain.PayoutRequest
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE payout_requests
			SET status = $3, transfer_reference = $4, resolved_at = $5
			WHERE id = $1 AND status = $2
		`, id, from, to, transferRef, resolvedAt)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payout_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrPayoutAlreadyResolved
		}

		// No outbox write here: the approved notification only fires after
		// the gateway has accepted the transfer, which happens outside this
		// transaction.
		return tx.QueryRow(ctx, `
			SELECT id, owner_id, amount, currency, status, transfer_reference, created_at, resolved_at
			FROM payout_requests WHERE id = $1
		`, id).Scan(&p.ID, &p.OwnerID, &p.Amount, &p.Currency, &p.Status, &p.TransferReference, &p.CreatedAt, &p.ResolvedAt)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	return p, nil
}

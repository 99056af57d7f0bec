package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
)

// Reserve increments sold by count only if the pool still has room. The
// check and the increment are one statement, the only safe shape under
// concurrent buyers; a read-then-write pair here would oversell.
func (r *Repository) Reserve(ctx context.Context, tx pgx.Tx, ticketTypeID uuid.UUID, count int) error {
	result, err := tx.Exec(ctx, `
		UPDATE ticket_types SET sold = sold + $2
		WHERE id = $1 AND sold + $2 <= quantity
	`, ticketTypeID, count)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_types WHERE id = $1)`, ticketTypeID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInsufficientInventory
	}
	return nil
}

// Release is the compensating decrement for an abandoned reservation.
func (r *Repository) Release(ctx context.Context, tx pgx.Tx, ticketTypeID uuid.UUID, count int) error {
	result, err := tx.Exec(ctx, `
		UPDATE ticket_types SET sold = sold - $2
		WHERE id = $1 AND sold - $2 >= 0
	`, ticketTypeID, count)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetTicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error) {
	var tt domain.TicketType
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, name, unit_price, currency, quantity, sold
		FROM ticket_types WHERE id = $1
	`, id).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.UnitPrice, &tt.Currency, &tt.Quantity, &tt.Sold)
	if err == pgx.ErrNoRows {
		return domain.TicketType{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TicketType{}, err
	}
	return tt, nil
}

func (r *Repository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ticket_types (id, event_id, name, unit_price, currency, quantity, sold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tt.ID, tt.EventID, tt.Name, tt.UnitPrice, tt.Currency, tt.Quantity, tt.Sold)
	return err
}

func (r *Repository) CreateEvent(ctx context.Context, ev domain.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, owner_id, name, currency)
		VALUES ($1, $2, $3, $4)
	`, ev.ID, ev.OwnerID, ev.Name, ev.Currency)
	return err
}

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/robertarktes/event-ticket-payments/internal/notify"
)

func (r *Repository) CreateOrder(ctx context.Context, order domain.Order) error {
	meta, err := json.Marshal(order.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (id, event_id, ticket_type_id, quantity, buyer_email, buyer_name,
			total_amount, currency, status, payment_reference, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.ID, order.EventID, order.TicketTypeID, order.Quantity, order.BuyerEmail, order.BuyerName,
		order.TotalAmount, order.Currency, order.Status, order.PaymentReference, meta, order.CreatedAt)
	return err
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
		SELECT id, event_id, ticket_type_id, quantity, buyer_email, buyer_name,
			total_amount, currency, status, payment_reference, meta, created_at
		FROM orders WHERE id = $1
	`, id))
}

func (r *Repository) getOrderForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Order, error) {
	return scanOrder(tx.QueryRow(ctx, `
		SELECT id, event_id, ticket_type_id, quantity, buyer_email, buyer_name,
			total_amount, currency, status, payment_reference, meta, created_at
		FROM orders WHERE id = $1
		FOR UPDATE
	`, id))
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var order domain.Order
	var meta []byte
	err := row.Scan(&order.ID, &order.EventID, &order.TicketTypeID, &order.Quantity,
		&order.BuyerEmail, &order.BuyerName, &order.TotalAmount, &order.Currency,
		&order.Status, &order.PaymentReference, &meta, &order.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	order.Meta = map[string]bool{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &order.Meta); err != nil {
			return domain.Order{}, err
		}
	}
	return order, nil
}

// MarkPaid transitions a pending order to paid and records the outbox event
// in the same transaction. It is the idempotency seam for webhook replay: a
// second delivery finds the order already paid, transitions nothing, and
// gets the stored order back with transitioned=false. A paid order never
// regresses.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (domain.Order, bool, error) {
	var order domain.Order
	transitioned := false

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, payment_reference = $3
			WHERE id = $1 AND status = $4
		`, id, domain.OrderStatusPaid, paymentRef, domain.OrderStatusPending)
		if err != nil {
			return err
		}
		transitioned = result.RowsAffected() == 1

		order, err = scanOrder(tx.QueryRow(ctx, `
			SELECT id, event_id, ticket_type_id, quantity, buyer_email, buyer_name,
				total_amount, currency, status, payment_reference, meta, created_at
			FROM orders WHERE id = $1
		`, id))
		if err != nil {
			return err
		}

		if !transitioned {
			return nil
		}
		return r.insertOutbox(ctx, tx, outboxRecord{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     notify.EventOrderPaid,
			Payload: map[string]interface{}{
				"order_id":          order.ID,
				"buyer_email":       order.BuyerEmail,
				"total_amount":      order.TotalAmount,
				"currency":          order.Currency,
				"payment_reference": paymentRef,
			},
		})
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return order, transitioned, nil
}

// IssueTickets writes the ticket rows, reserves inventory, and flips the
// tickets_issued flag in one transaction. If a concurrent call got there
// first it returns the already-issued tickets with created=false. The
// (order_id, seat_index) uniqueness constraint backs the flag up.
func (r *Repository) IssueTickets(ctx context.Context, order domain.Order, tickets []domain.Ticket) ([]domain.Ticket, bool, error) {
	var issued []domain.Ticket
	created := false

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := r.getOrderForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status != domain.OrderStatusPaid {
			return domain.ErrOrderNotPaid
		}
		if locked.Flag(domain.MetaTicketsIssued) {
			issued, err = ticketsByOrderTx(ctx, tx, order.ID)
			return err
		}

		if err := r.Reserve(ctx, tx, locked.TicketTypeID, locked.Quantity); err != nil {
			return err
		}

		for _, t := range tickets {
			_, err := tx.Exec(ctx, `
				INSERT INTO tickets (id, order_id, ticket_type_id, seat_index, code, validation_status)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, t.ID, t.OrderID, t.TicketTypeID, t.SeatIndex, t.Code, t.ValidationStatus)
			if isUniqueViolation(err) {
				// Lost the (order_id, seat_index) race to a writer that did
				// not go through the flag; retry and pick up its tickets.
				return domain.ErrSerializationFailure
			}
			if err != nil {
				return err
			}
		}

		if err := setMetaFlag(ctx, tx, order.ID, domain.MetaTicketsIssued); err != nil {
			return err
		}

		issued = tickets
		created = true
		return r.insertOutbox(ctx, tx, outboxRecord{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     notify.EventTicketsIssued,
			Payload: map[string]interface{}{
				"order_id":     order.ID,
				"buyer_email":  order.BuyerEmail,
				"ticket_count": len(tickets),
			},
		})
	})
	if err != nil {
		return nil, false, err
	}
	return issued, created, nil
}

func (r *Repository) TicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, ticket_type_id, seat_index, code, validation_status
		FROM tickets WHERE order_id = $1 ORDER BY seat_index
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func ticketsByOrderTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, order_id, ticket_type_id, seat_index, code, validation_status
		FROM tickets WHERE order_id = $1 ORDER BY seat_index
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.TicketTypeID, &t.SeatIndex, &t.Code, &t.ValidationStatus); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// MarkFulfillmentFailed durably records that a paid order could not be
// fulfilled (sold out between payment and issuance) so an operator can
// reconcile it. The paid money is never silently dropped.
func (r *Repository) MarkFulfillmentFailed(ctx context.Context, orderID uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := setMetaFlag(ctx, tx, orderID, domain.MetaFulfillmentFailed); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, outboxRecord{
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     notify.EventFulfillmentFailed,
			Payload:       map[string]interface{}{"order_id": orderID},
		})
	})
}

// setMetaFlag is a one-way flip; it never clears a flag.
func setMetaFlag(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, key string) error {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET meta = meta || jsonb_build_object($2::text, true)
		WHERE id = $1
	`, orderID, key)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListUnremindedPending returns pending orders older than cutoff that have
// not had an abandoned-checkout reminder yet.
func (r *Repository) ListUnremindedPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, ticket_type_id, quantity, buyer_email, buyer_name,
			total_amount, currency, status, payment_reference, meta, created_at
		FROM orders
		WHERE status = $1 AND created_at <= $2
			AND NOT COALESCE((meta->>$3)::bool, false)
		ORDER BY created_at ASC LIMIT $4
	`, domain.OrderStatusPending, cutoff, domain.MetaReminderSent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// MarkReminderSent flips the reminder_sent flag only if it is still unset,
// which is the send-once guarantee for abandoned-checkout emails. It reports
// whether this call won the flip.
func (r *Repository) MarkReminderSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders SET meta = meta || jsonb_build_object($2::text, true)
		WHERE id = $1 AND status = $3 AND NOT COALESCE((meta->>$2)::bool, false)
	`, orderID, domain.MetaReminderSent, domain.OrderStatusPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

package migrations

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the full DDL for the pipeline's tables. Apply is idempotent and
// intended for dev and test environments; production applies the same DDL
// through the deployment tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	currency TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ticket_types (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events (id),
	name TEXT NOT NULL,
	unit_price BIGINT NOT NULL,
	currency TEXT NOT NULL,
	quantity INT NOT NULL,
	sold INT NOT NULL DEFAULT 0,
	CHECK (sold >= 0 AND sold <= quantity)
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	ticket_type_id UUID NOT NULL REFERENCES ticket_types (id),
	quantity INT NOT NULL CHECK (quantity > 0),
	buyer_email TEXT NOT NULL,
	buyer_name TEXT NOT NULL DEFAULT '',
	total_amount BIGINT NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'PAID')),
	payment_reference TEXT NOT NULL DEFAULT '',
	meta JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_pending_created_idx
	ON orders (created_at) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	order_id UUID NOT NULL REFERENCES orders (id),
	ticket_type_id UUID NOT NULL REFERENCES ticket_types (id),
	seat_index INT NOT NULL,
	code TEXT NOT NULL UNIQUE,
	validation_status TEXT NOT NULL CHECK (validation_status IN ('VALID', 'USED')),
	UNIQUE (order_id, seat_index)
);

CREATE TABLE IF NOT EXISTS payout_requests (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	currency TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
	transfer_reference TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS payout_requests_owner_idx ON payout_requests (owner_id, status);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'NEW',
	dedupe_key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_unpublished_idx
	ON outbox (created_at) WHERE status = 'NEW';
`

func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}

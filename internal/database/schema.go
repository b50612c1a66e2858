package database

import (
	"context"
	"fmt"
)

// schema is applied on startup. Statements are idempotent so a restart
// against an existing database is a no-op.
//
// payment_requests carries no foreign key to pairings: a pairing may be
// torn down while its requests are still settling, and requests then live
// on until retention cleanup.
const schema = `
CREATE TABLE IF NOT EXISTS pairings (
    pin_code              VARCHAR(6) PRIMARY KEY,
    pos_id                TEXT NOT NULL,
    pos_name              TEXT NOT NULL,
    event_id              TEXT,
    event_name            TEXT,
    terminal_connected    BOOLEAN NOT NULL DEFAULT FALSE,
    terminal_connected_at TIMESTAMPTZ,
    terminal_serial       TEXT,
    terminal_name         TEXT,
    last_heartbeat_at     TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pairings_expires_at ON pairings (expires_at);

CREATE TABLE IF NOT EXISTS payment_requests (
    request_id        UUID PRIMARY KEY,
    pin_code          VARCHAR(6) NOT NULL,
    amount            BIGINT NOT NULL,
    currency          VARCHAR(3) NOT NULL,
    description       TEXT,
    sale_id           TEXT,
    items             JSONB,
    status            VARCHAR(16) NOT NULL DEFAULT 'pending',
    payment_intent_id TEXT,
    card_details      JSONB,
    error_message     TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_payment_requests_pin_code ON payment_requests (pin_code, status, created_at);
CREATE INDEX IF NOT EXISTS idx_payment_requests_updated_at ON payment_requests (updated_at);
`

// EnsureSchema creates the tables and indexes the server needs.
func EnsureSchema(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Package postgres opens the ledger database and applies its schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"tracechain/internal/platform/config"
)

// Open connects with the lib/pq driver and verifies the connection.
// Returns nil when no database URL is configured.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the ledger tables if they do not exist. Statements are
// idempotent so every process start may run it.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

// Truncate empties every ledger table and restarts the id sequences.
// Integration tests call it between cases.
func Truncate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`TRUNCATE audit_events, transfers, balances, tokens, participants RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id           BIGSERIAL PRIMARY KEY,
		address      TEXT        NOT NULL,
		role         TEXT        NOT NULL,
		status       TEXT        NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS participants_live_address
		ON participants (address) WHERE status <> 'canceled'`,
	`CREATE INDEX IF NOT EXISTS participants_address_id ON participants (address, id DESC)`,

	`CREATE TABLE IF NOT EXISTS tokens (
		id           BIGSERIAL PRIMARY KEY,
		creator      TEXT        NOT NULL,
		name         TEXT        NOT NULL,
		total_supply BIGINT      NOT NULL CHECK (total_supply > 0),
		metadata     TEXT        NOT NULL DEFAULT '',
		parent_id    BIGINT      NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tokens_creator ON tokens (creator, id)`,

	// The token row is inserted after its creator is credited, inside one
	// transaction, so the foreign key is checked at commit.
	`CREATE TABLE IF NOT EXISTS balances (
		token_id  BIGINT NOT NULL REFERENCES tokens (id) DEFERRABLE INITIALLY DEFERRED,
		holder    TEXT   NOT NULL,
		available BIGINT NOT NULL DEFAULT 0 CHECK (available >= 0),
		locked    BIGINT NOT NULL DEFAULT 0 CHECK (locked >= 0),
		PRIMARY KEY (token_id, holder)
	)`,
	`CREATE INDEX IF NOT EXISTS balances_holder ON balances (holder, token_id)`,

	`CREATE TABLE IF NOT EXISTS transfers (
		id           BIGSERIAL PRIMARY KEY,
		from_address TEXT        NOT NULL,
		to_address   TEXT        NOT NULL,
		token_id     BIGINT      NOT NULL REFERENCES tokens (id),
		amount       BIGINT      NOT NULL CHECK (amount > 0),
		status       TEXT        NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		resolved_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS transfers_from ON transfers (from_address, id)`,
	`CREATE INDEX IF NOT EXISTS transfers_to ON transfers (to_address, id)`,

	// seq keeps append order; id makes redelivery idempotent.
	`CREATE TABLE IF NOT EXISTS audit_events (
		seq          BIGSERIAL PRIMARY KEY,
		id           UUID        NOT NULL UNIQUE,
		occurred_at  TIMESTAMPTZ NOT NULL,
		action       TEXT        NOT NULL,
		actor        TEXT        NOT NULL,
		counterparty TEXT        NOT NULL DEFAULT '',
		token_id     BIGINT      NOT NULL DEFAULT 0,
		transfer_id  BIGINT      NOT NULL DEFAULT 0,
		amount       BIGINT      NOT NULL DEFAULT 0,
		detail       TEXT        NOT NULL DEFAULT '',
		request_id   TEXT        NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_actor ON audit_events (actor, seq)`,
	`CREATE INDEX IF NOT EXISTS audit_events_counterparty ON audit_events (counterparty, seq)`,
}

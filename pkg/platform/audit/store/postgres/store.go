// Package postgres persists audit events in the audit_events table so the
// trail survives restarts and can be queried per participant.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"tracechain/pkg/domain"
	audit "tracechain/pkg/platform/audit"
	txcontext "tracechain/pkg/platform/tx"
)

// maxRecent caps ListRecent when the caller passes no limit.
const maxRecent = 500

// Store implements audit.Store, audit.Lister and audit.RecentLister.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts the event. Re-delivering an event with the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_events (
			id, occurred_at, action, actor, counterparty,
			token_id, transfer_id, amount, detail, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		event.ID,
		event.Timestamp,
		string(event.Action),
		event.Actor.String(),
		event.Counterparty.String(),
		int64(event.TokenID),
		int64(event.TransferID),
		event.Amount,
		event.Detail,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const eventColumns = `id, occurred_at, action, actor, counterparty,
	token_id, transfer_id, amount, detail, request_id`

// ListByParticipant returns events where addr is the actor or counterparty,
// oldest first.
func (s *Store) ListByParticipant(ctx context.Context, addr domain.Address) ([]audit.Event, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		WHERE actor = $1 OR counterparty = $1
		ORDER BY seq
	`, addr.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the newest events first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		ORDER BY seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e                   audit.Event
			action              string
			actor, counterparty string
			tokenID, transferID int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&action,
			&actor,
			&counterparty,
			&tokenID,
			&transferID,
			&e.Amount,
			&e.Detail,
			&e.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		e.Actor = domain.Address(actor)
		e.Counterparty = domain.Address(counterparty)
		e.TokenID = domain.TokenID(tokenID)
		e.TransferID = domain.TransferID(transferID)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tracechain/internal/transfer/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
	txcontext "tracechain/pkg/platform/tx"
)

// PostgresStore persists transfers in the transfers table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const transferColumns = `id, from_address, to_address, token_id, amount, status, created_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Transfer) error {
	var id int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO transfers (from_address, to_address, token_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.From, t.To, int64(t.TokenID), t.Amount, t.Status, t.CreatedAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	t.ID = domain.TransferID(id)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.TransferID) (*models.Transfer, error) {
	t, err := scanTransfer(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find transfer: %w", err)
	}
	return t, nil
}

// Execute locks the row with FOR UPDATE and runs fn inside the same
// transaction; stores reached through fn's context join it.
func (s *PostgresStore) Execute(ctx context.Context, id domain.TransferID, fn func(ctx context.Context, t *models.Transfer) error) (*models.Transfer, error) {
	var result *models.Transfer
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		exec := txcontext.Exec(txCtx, s.db)
		t, err := scanTransfer(exec.QueryRowContext(txCtx,
			`SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, int64(id)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock transfer: %w", err)
		}
		if err := fn(txCtx, t); err != nil {
			return err
		}
		if _, err := exec.ExecContext(txCtx,
			`UPDATE transfers SET status = $2, resolved_at = $3 WHERE id = $1`,
			int64(t.ID), t.Status, t.ResolvedAt,
		); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, addr domain.Address, after domain.TransferID, limit int) ([]*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers
		WHERE (from_address = $1 OR to_address = $1) AND id > $2
		ORDER BY id`
	args := []any{addr, int64(after)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type transferRow interface {
	Scan(dest ...any) error
}

func scanTransfer(row transferRow) (*models.Transfer, error) {
	var t models.Transfer
	var id, token int64
	var resolved sql.NullTime
	if err := row.Scan(&id, &t.From, &t.To, &token, &t.Amount, &t.Status, &t.CreatedAt, &resolved); err != nil {
		return nil, err
	}
	t.ID = domain.TransferID(id)
	t.TokenID = domain.TokenID(token)
	if resolved.Valid {
		at := resolved.Time
		t.ResolvedAt = &at
	}
	return &t, nil
}

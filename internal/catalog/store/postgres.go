package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tracechain/internal/catalog/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
	txcontext "tracechain/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists tokens in the tokens table. Ids come from the
// table's sequence so they stay monotonic across processes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) NextID(ctx context.Context) (domain.TokenID, error) {
	var id int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT nextval(pg_get_serial_sequence('tokens', 'id'))`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next token id: %w", err)
	}
	return domain.TokenID(id), nil
}

func (s *PostgresStore) Insert(ctx context.Context, t *models.Token) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO tokens (id, creator, name, total_supply, metadata, parent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, int64(t.ID), t.Creator, t.Name, t.TotalSupply, t.Metadata, int64(t.ParentID), t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

const tokenColumns = `id, creator, name, total_supply, metadata, parent_id, created_at`

func (s *PostgresStore) FindByID(ctx context.Context, id domain.TokenID) (*models.Token, error) {
	t, err := scanToken(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListByCreator(ctx context.Context, creator domain.Address) ([]*models.Token, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE creator = $1 ORDER BY id`, creator)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type tokenRow interface {
	Scan(dest ...any) error
}

func scanToken(row tokenRow) (*models.Token, error) {
	var t models.Token
	var id, parent int64
	if err := row.Scan(&id, &t.Creator, &t.Name, &t.TotalSupply, &t.Metadata, &parent, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = domain.TokenID(id)
	t.ParentID = domain.TokenID(parent)
	return &t, nil
}

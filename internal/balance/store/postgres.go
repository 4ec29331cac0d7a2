package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tracechain/internal/balance/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
	txcontext "tracechain/pkg/platform/tx"
)

// PostgresStore keeps balances in the balances table. Every debit is a
// conditional UPDATE so a short balance touches no row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Credit(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	return s.credit(ctx, txcontext.Exec(ctx, s.db), token, holder, amount)
}

func (s *PostgresStore) credit(ctx context.Context, exec txcontext.Executor, token domain.TokenID, holder domain.Address, amount int64) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO balances (token_id, holder, available, locked)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (token_id, holder)
		DO UPDATE SET available = balances.available + EXCLUDED.available
	`, int64(token), holder, amount)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (s *PostgresStore) DebitAvailable(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	return s.conditional(ctx, txcontext.Exec(ctx, s.db), "debit", `
		UPDATE balances SET available = available - $3
		WHERE token_id = $1 AND holder = $2 AND available >= $3
	`, token, holder, amount)
}

func (s *PostgresStore) Lock(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	return s.conditional(ctx, txcontext.Exec(ctx, s.db), "lock", `
		UPDATE balances SET available = available - $3, locked = locked + $3
		WHERE token_id = $1 AND holder = $2 AND available >= $3
	`, token, holder, amount)
}

func (s *PostgresStore) UnlockToAvailable(ctx context.Context, token domain.TokenID, holder domain.Address, amount int64) error {
	return s.conditional(ctx, txcontext.Exec(ctx, s.db), "unlock", `
		UPDATE balances SET locked = locked - $3, available = available + $3
		WHERE token_id = $1 AND holder = $2 AND locked >= $3
	`, token, holder, amount)
}

const unlockFromQuery = `
	UPDATE balances SET locked = locked - $3
	WHERE token_id = $1 AND holder = $2 AND locked >= $3
`

// UnlockToRecipient runs both row updates in one transaction, joining the
// caller's transaction when there is one. Rows are touched in holder order.
func (s *PostgresStore) UnlockToRecipient(ctx context.Context, token domain.TokenID, from, to domain.Address, amount int64) error {
	return txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		exec := txcontext.Exec(txCtx, s.db)
		if from < to {
			if err := s.conditional(txCtx, exec, "unlock", unlockFromQuery, token, from, amount); err != nil {
				return err
			}
			return s.credit(txCtx, exec, token, to, amount)
		}
		if err := s.credit(txCtx, exec, token, to, amount); err != nil {
			return err
		}
		return s.conditional(txCtx, exec, "unlock", unlockFromQuery, token, from, amount)
	})
}

func (s *PostgresStore) conditional(ctx context.Context, exec txcontext.Executor, op, query string, token domain.TokenID, holder domain.Address, amount int64) error {
	res, err := exec.ExecContext(ctx, query, int64(token), holder, amount)
	if err != nil {
		return fmt.Errorf("%s balance: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s balance: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrInsufficient
	}
	return nil
}

const balanceColumns = `token_id, holder, available, locked`

func (s *PostgresStore) Get(ctx context.Context, token domain.TokenID, holder domain.Address) (models.Balance, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE token_id = $1 AND holder = $2`,
		int64(token), holder)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Zero(token, holder), nil
		}
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Holdings(ctx context.Context, holder domain.Address) ([]models.Balance, error) {
	return s.query(ctx, `SELECT `+balanceColumns+` FROM balances WHERE holder = $1 ORDER BY token_id`, holder)
}

// Snapshot is a single statement, so it reads one committed state.
func (s *PostgresStore) Snapshot(ctx context.Context, token domain.TokenID) ([]models.Balance, error) {
	return s.query(ctx, `SELECT `+balanceColumns+` FROM balances WHERE token_id = $1 ORDER BY holder COLLATE "C"`, int64(token))
}

func (s *PostgresStore) query(ctx context.Context, query string, arg any) ([]models.Balance, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var out []models.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type balanceRow interface {
	Scan(dest ...any) error
}

func scanBalance(row balanceRow) (models.Balance, error) {
	var b models.Balance
	var token int64
	if err := row.Scan(&token, &b.Holder, &b.Available, &b.Locked); err != nil {
		return models.Balance{}, err
	}
	b.TokenID = domain.TokenID(token)
	return b, nil
}

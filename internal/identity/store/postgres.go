package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tracechain/internal/identity/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/platform/sentinel"
	txcontext "tracechain/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL error code for unique index conflicts.
const uniqueViolation = "23505"

// PostgresStore persists registrations in the participants table. A partial
// unique index on (address) WHERE status <> 'canceled' keeps one live
// registration per address.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const participantColumns = `id, address, role, status, requested_at, updated_at`

func (s *PostgresStore) CreateIfAvailable(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (address, role, status, requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query,
		p.Address, p.Role, p.Status, p.RequestedAt, p.UpdatedAt,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	p.ID = domain.RegistrationID(id)
	return nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, addr domain.Address) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE address = $1 ORDER BY id DESC LIMIT 1`
	p, err := scanParticipant(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, addr))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return p, nil
}

// Execute locks the newest registration with FOR UPDATE, validates, mutates,
// and writes it back in one transaction.
func (s *PostgresStore) Execute(ctx context.Context, addr domain.Address, validate func(*models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error) {
	var result *models.Participant
	err := txcontext.NewSQLRunner(s.db).RunInTx(ctx, func(txCtx context.Context) error {
		exec := txcontext.Exec(txCtx, s.db)
		query := `SELECT ` + participantColumns + ` FROM participants WHERE address = $1 ORDER BY id DESC LIMIT 1 FOR UPDATE`
		p, err := scanParticipant(exec.QueryRowContext(txCtx, query, addr))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock participant: %w", err)
		}
		if err := validate(p); err != nil {
			return err
		}
		mutate(p)
		if _, err := exec.ExecContext(txCtx,
			`UPDATE participants SET status = $2, updated_at = $3 WHERE id = $1`,
			p.ID, p.Status, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) List(ctx context.Context, status *models.Status) ([]*models.Participant, error) {
	query := `
		SELECT ` + participantColumns + ` FROM (
			SELECT DISTINCT ON (address) ` + participantColumns + `
			FROM participants
			ORDER BY address, id DESC
		) latest
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY id
	`
	var filter sql.NullString
	if status != nil {
		filter = sql.NullString{String: string(*status), Valid: true}
	}
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, filter)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type participantRow interface {
	Scan(dest ...any) error
}

func scanParticipant(row participantRow) (*models.Participant, error) {
	var p models.Participant
	var id int64
	if err := row.Scan(&id, &p.Address, &p.Role, &p.Status, &p.RequestedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = domain.RegistrationID(id)
	return &p, nil
}

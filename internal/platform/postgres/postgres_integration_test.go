//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechain/internal/platform/config"
	"tracechain/internal/platform/postgres"
	"tracechain/pkg/testutil/containers"
)

func TestMigrateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)

	require.NoError(t, postgres.Migrate(ctx, pg.DB))
	require.NoError(t, postgres.Migrate(ctx, pg.DB))

	var tables int
	err := pg.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name IN ('participants', 'tokens', 'balances', 'transfers', 'audit_events')
	`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 5, tables)
}

func TestOpenDisabled(t *testing.T) {
	db, err := postgres.Open(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, db)
}

// Package dbtest starts a throwaway PostgreSQL container with the schema
// migrated. Tests using it run only when ARAP_INTEGRATION=1.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/arap/internal/platform/db"
	"github.com/odyssey-erp/arap/migrations"
)

// EnvFlag enables container-backed tests.
const EnvFlag = "ARAP_INTEGRATION"

// NewPool returns a pool connected to a fresh, migrated database. The
// container is terminated when the test ends.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() || os.Getenv(EnvFlag) != "1" {
		t.Skipf("set %s=1 to run database integration tests", EnvFlag)
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("arap_test"),
		tcpostgres.WithUsername("arap"),
		tcpostgres.WithPassword("arap"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := db.NewMigrator(migrations.FS, dsn)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	pool, err := db.New(ctx, dsn, "arap-test")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// SeedAccount inserts a settlement account and returns its id.
func SeedAccount(t *testing.T, pool *pgxpool.Pool, code string, active bool) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO settlement_accounts (code, name, kind, is_active) VALUES ($1, $1, 'BANK', $2) RETURNING id`,
		code, active).Scan(&id)
	require.NoError(t, err)
	return id
}

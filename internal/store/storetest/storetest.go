// Package storetest spins up an ephemeral Postgres container and runs the
// embedded migrations against it, a container-per-test approach generalized
// from testcontainers-go's dolt module usage elsewhere to its Postgres
// module.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/osgeo/wikiqa/internal/store"
)

// NewPool starts a disposable Postgres container, applies every migration,
// and returns a connected pool. The container and pool are torn down via
// t.Cleanup. Tests that need Postgres call this once per test (or once per
// subtest group) rather than sharing a container across the whole package,
// trading a slower suite for full isolation between tests.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres-backed test in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("wikiqa_test"),
		postgres.WithUsername("wikiqa"),
		postgres.WithPassword("wikiqa"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("storetest: start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("storetest: connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("storetest: connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := store.Migrate(ctx, pool); err != nil {
		t.Fatalf("storetest: migrate: %v", err)
	}
	return pool
}

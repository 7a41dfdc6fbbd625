package postgres_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/internal/portal/store/drivers/postgres"
	"github.com/aussiebroadwan/portal/internal/portal/store/storetest"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway postgres container and returns a function
// that builds the URL of a database on it. The test is skipped in -short
// mode or when Docker is unavailable.
func startPostgres(t *testing.T) func(db string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "portal",
			"POSTGRES_PASSWORD": "portal",
			"POSTGRES_DB":       "portal",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return func(db string) string {
		return fmt.Sprintf("postgres://portal:portal@%s:%s/%s?sslmode=disable", host, port.Port(), db)
	}
}

func TestPostgresStore(t *testing.T) {
	dbURL := startPostgres(t)
	ctx := context.Background()

	// Each subtest gets its own database cloned from a migrated template.
	admin, err := pgx.Connect(ctx, dbURL("postgres"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close(ctx) })

	tmpl, err := postgres.NewStore(ctx, dbURL("portal"), postgres.Options{})
	require.NoError(t, err)
	require.NoError(t, tmpl.ApplyMigrations())
	require.NoError(t, tmpl.Close())

	var seq atomic.Int32
	storetest.Run(t, func(t *testing.T) store.Store {
		name := fmt.Sprintf("portal_test_%d", seq.Add(1))
		_, err := admin.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %s TEMPLATE portal`, name))
		require.NoError(t, err)

		s, err := postgres.NewStore(ctx, dbURL(name), postgres.Options{MaxConns: 8})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

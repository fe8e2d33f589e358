package store

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestDB starts a PostgreSQL container and returns a pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresPersister(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	p := NewPostgresPersister(pool)
	require.NoError(t, p.Migrate(ctx))
	// Migrations are idempotent.
	require.NoError(t, p.Migrate(ctx))

	_, err := p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	s, err := Open(ctx, p)
	require.NoError(t, err)

	_, err = s.IncrementWarning(ctx, -100, 7)
	require.NoError(t, err)
	require.NoError(t, s.SetRules(ctx, -100, "curtsy before speaking"))

	user := s.User(-100, 7)
	user.Coins = 100
	require.NoError(t, s.PutUser(ctx, -100, 7, user))

	reopened, err := Open(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Warnings(-100, 7))
	assert.Equal(t, int64(100), reopened.User(-100, 7).Coins)

	rules, ok := reopened.Rules(-100)
	assert.True(t, ok)
	assert.Equal(t, "curtsy before speaking", rules)
}

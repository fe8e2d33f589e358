package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// snapshotRowID is the primary key of the single snapshot row.
const snapshotRowID = 1

// PostgresPersister keeps the snapshot as a jsonb document in one row.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

// NewPostgresPersister returns a persister backed by pool.
// Call Migrate before first use.
func NewPostgresPersister(pool *pgxpool.Pool) *PostgresPersister {
	return &PostgresPersister{pool: pool}
}

// Migrate applies the embedded schema migrations.
func (p *PostgresPersister) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		log.Info().
			Int64("version", r.Source.Version).
			Dur("took", r.Duration).
			Msg("Applied migration")
	}
	return nil
}

// Load returns the stored document.
func (p *PostgresPersister) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT document FROM state_snapshot WHERE id = $1`, snapshotRowID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, nil
}

// Save upserts the document.
func (p *PostgresPersister) Save(ctx context.Context, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO state_snapshot (id, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		snapshotRowID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (p *PostgresPersister) Close() error {
	return nil
}

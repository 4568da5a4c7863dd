package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/raterudder/metersync/pkg/config"
)

const createBlobsTable = `CREATE TABLE IF NOT EXISTS meter_blobs (
	key text PRIMARY KEY,
	body bytea NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

// PostgresStore keeps blobs in the meter_blobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to postgres and creates the meter_blobs table if it
// doesn't exist.
func NewPostgres(ctx context.Context, cfg config.Postgres) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, createBlobsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create meter_blobs table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get reads the body stored for key.
func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT body FROM meter_blobs WHERE key = $1`, key).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to query %s: %w", key, err)
	}
	return body, nil
}

// Put upserts the body for key.
func (p *PostgresStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO meter_blobs (key, body, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`, key, body)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", key, err)
	}
	return nil
}

// Close closes the pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// Package postgres implements the storage interfaces against the main
// database using pgx connection pools.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"
)

//go:embed schema.sql
var schema string

// Store holds the shared connection pool. It implements
// interfaces.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewStore connects to the main database and applies the schema.
func NewStore(ctx context.Context, dsn string, logger arbor.ILogger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	store := &Store{pool: pool, logger: logger}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for callers that need their own
// dedicated connections, such as the runner's lock holder.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store represents the Postgres storage layer
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Store instance
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	// The broker is a single-user process; a small pool is plenty.
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the database connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Repositories returns the Postgres implementation of every repository
func (s *Store) Repositories() *Repositories {
	return &Repositories{
		Capabilities: NewCapabilityRepository(s),
		BlockList:    NewBlockListRepository(s),
		Activity:     NewActivityRepository(s),
		Keyfiles:     NewKeyfileRepository(s),
		Profile:      NewProfileRepository(s),
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

package storage

import (
	"context"
	"fmt"

	"github.com/better-wallet/dapp-broker/pkg/types"
)

// PgBlockListRepository stores blocked sites in Postgres
type PgBlockListRepository struct {
	store *Store
}

// NewBlockListRepository creates a new PgBlockListRepository
func NewBlockListRepository(store *Store) *PgBlockListRepository {
	return &PgBlockListRepository{store: store}
}

// Contains reports whether entry is blocked verbatim
func (r *PgBlockListRepository) Contains(ctx context.Context, entry string) (bool, error) {
	var exists bool
	err := r.store.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocked_sites WHERE entry = $1)`, entry,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check block list: %w", err)
	}
	return exists, nil
}

// Add blocks entry; adding an existing entry is a no-op
func (r *PgBlockListRepository) Add(ctx context.Context, entry string) error {
	_, err := r.store.pool.Exec(ctx,
		`INSERT INTO blocked_sites (entry) VALUES ($1) ON CONFLICT (entry) DO NOTHING`, entry)
	if err != nil {
		return fmt.Errorf("failed to add block entry: %w", err)
	}
	return nil
}

// Remove unblocks entry
func (r *PgBlockListRepository) Remove(ctx context.Context, entry string) error {
	_, err := r.store.pool.Exec(ctx, `DELETE FROM blocked_sites WHERE entry = $1`, entry)
	if err != nil {
		return fmt.Errorf("failed to remove block entry: %w", err)
	}
	return nil
}

// List returns every blocked entry
func (r *PgBlockListRepository) List(ctx context.Context) ([]*types.BlockEntry, error) {
	rows, err := r.store.pool.Query(ctx, `SELECT entry, created_at FROM blocked_sites ORDER BY entry`)
	if err != nil {
		return nil, fmt.Errorf("failed to list block entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.BlockEntry
	for rows.Next() {
		var e types.BlockEntry
		if err := rows.Scan(&e.Entry, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

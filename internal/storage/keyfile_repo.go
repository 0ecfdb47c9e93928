package storage

import (
	"context"
	"fmt"

	"github.com/better-wallet/dapp-broker/pkg/types"
)

// PgKeyfileRepository stores sealed keyfiles in Postgres
type PgKeyfileRepository struct {
	store *Store
}

// NewKeyfileRepository creates a new PgKeyfileRepository
func NewKeyfileRepository(store *Store) *PgKeyfileRepository {
	return &PgKeyfileRepository{store: store}
}

// Put inserts or replaces the keyfile for record.Address
func (r *PgKeyfileRepository) Put(ctx context.Context, record *types.KeyfileRecord) error {
	query := `
		INSERT INTO keyfiles (address, sealed_blob, provider)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			sealed_blob = EXCLUDED.sealed_blob,
			provider = EXCLUDED.provider
		RETURNING created_at
	`

	err := r.store.pool.QueryRow(ctx, query,
		record.Address,
		record.SealedBlob,
		record.Provider,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store keyfile: %w", err)
	}
	return nil
}

// Get retrieves the keyfile for address
func (r *PgKeyfileRepository) Get(ctx context.Context, address string) (*types.KeyfileRecord, error) {
	query := `
		SELECT address, sealed_blob, provider, created_at
		FROM keyfiles
		WHERE address = $1
	`

	var rec types.KeyfileRecord
	err := r.store.pool.QueryRow(ctx, query, address).Scan(
		&rec.Address,
		&rec.SealedBlob,
		&rec.Provider,
		&rec.CreatedAt,
	)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get keyfile: %w", err)
	}
	return &rec, nil
}

// List returns every keyfile in insertion order
func (r *PgKeyfileRepository) List(ctx context.Context) ([]*types.KeyfileRecord, error) {
	query := `
		SELECT address, sealed_blob, provider, created_at
		FROM keyfiles
		ORDER BY created_at, address
	`

	rows, err := r.store.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list keyfiles: %w", err)
	}
	defer rows.Close()

	var records []*types.KeyfileRecord
	for rows.Next() {
		var rec types.KeyfileRecord
		if err := rows.Scan(&rec.Address, &rec.SealedBlob, &rec.Provider, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan keyfile: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Delete removes the keyfile for address
func (r *PgKeyfileRepository) Delete(ctx context.Context, address string) error {
	_, err := r.store.pool.Exec(ctx, `DELETE FROM keyfiles WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("failed to delete keyfile: %w", err)
	}
	return nil
}

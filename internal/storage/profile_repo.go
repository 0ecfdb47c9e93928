package storage

import (
	"context"
	"fmt"
)

const profileKeyActiveAddress = "active_address"

// PgProfileRepository stores user selections in a small key/value table
type PgProfileRepository struct {
	store *Store
}

// NewProfileRepository creates a new PgProfileRepository
func NewProfileRepository(store *Store) *PgProfileRepository {
	return &PgProfileRepository{store: store}
}

// ActiveAddress returns the selected address, or "" if none
func (r *PgProfileRepository) ActiveAddress(ctx context.Context) (string, error) {
	var value string
	err := r.store.pool.QueryRow(ctx,
		`SELECT value FROM profile_settings WHERE key = $1`, profileKeyActiveAddress,
	).Scan(&value)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active address: %w", err)
	}
	return value, nil
}

// SetActiveAddress selects address; an empty address clears the selection
func (r *PgProfileRepository) SetActiveAddress(ctx context.Context, address string) error {
	var err error
	if address == "" {
		_, err = r.store.pool.Exec(ctx, `DELETE FROM profile_settings WHERE key = $1`, profileKeyActiveAddress)
	} else {
		_, err = r.store.pool.Exec(ctx, `
			INSERT INTO profile_settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, profileKeyActiveAddress, address)
	}
	if err != nil {
		return fmt.Errorf("failed to set active address: %w", err)
	}
	return nil
}

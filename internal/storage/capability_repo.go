package storage

import (
	"context"
	"fmt"

	"github.com/better-wallet/dapp-broker/pkg/types"
)

// PgCapabilityRepository stores capability grants in Postgres
type PgCapabilityRepository struct {
	store *Store
}

// NewCapabilityRepository creates a new PgCapabilityRepository
func NewCapabilityRepository(store *Store) *PgCapabilityRepository {
	return &PgCapabilityRepository{store: store}
}

// Get returns the capabilities held by origin
func (r *PgCapabilityRepository) Get(ctx context.Context, origin string) ([]types.Capability, error) {
	query := `SELECT capabilities FROM capability_grants WHERE origin = $1`

	var names []string
	err := r.store.pool.QueryRow(ctx, query, origin).Scan(&names)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capability grant: %w", err)
	}

	return toCapabilities(names), nil
}

// Merge unions caps into the grant in a single statement so concurrent
// grants for the same origin cannot lose each other's capabilities.
func (r *PgCapabilityRepository) Merge(ctx context.Context, origin string, caps []types.Capability) ([]types.Capability, error) {
	query := `
		INSERT INTO capability_grants (origin, capabilities)
		VALUES ($1, $2)
		ON CONFLICT (origin) DO UPDATE SET
			capabilities = ARRAY(
				SELECT DISTINCT c
				FROM unnest(capability_grants.capabilities || EXCLUDED.capabilities) AS c
				ORDER BY c
			),
			updated_at = NOW()
		RETURNING capabilities
	`

	var names []string
	err := r.store.pool.QueryRow(ctx, query, origin, fromCapabilities(types.NormalizeCapabilities(caps))).Scan(&names)
	if err != nil {
		return nil, fmt.Errorf("failed to merge capability grant: %w", err)
	}

	return toCapabilities(names), nil
}

// Delete removes the grant for origin
func (r *PgCapabilityRepository) Delete(ctx context.Context, origin string) error {
	_, err := r.store.pool.Exec(ctx, `DELETE FROM capability_grants WHERE origin = $1`, origin)
	if err != nil {
		return fmt.Errorf("failed to delete capability grant: %w", err)
	}
	return nil
}

// List returns every grant ordered by origin
func (r *PgCapabilityRepository) List(ctx context.Context) ([]*types.CapabilityGrant, error) {
	query := `
		SELECT origin, capabilities, created_at, updated_at
		FROM capability_grants
		ORDER BY origin
	`

	rows, err := r.store.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list capability grants: %w", err)
	}
	defer rows.Close()

	var grants []*types.CapabilityGrant
	for rows.Next() {
		var grant types.CapabilityGrant
		var names []string
		if err := rows.Scan(&grant.Origin, &names, &grant.CreatedAt, &grant.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capability grant: %w", err)
		}
		grant.Capabilities = toCapabilities(names)
		grants = append(grants, &grant)
	}

	return grants, rows.Err()
}

func toCapabilities(names []string) []types.Capability {
	caps := make([]types.Capability, 0, len(names))
	for _, name := range names {
		caps = append(caps, types.Capability(name))
	}
	return types.NormalizeCapabilities(caps)
}

func fromCapabilities(caps []types.Capability) []string {
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	return names
}

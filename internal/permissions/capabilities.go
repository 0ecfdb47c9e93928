// Package permissions holds the per-origin capability grants and the block
// list. Both are keyed by canonical origin as produced by the origin package.
package permissions

import (
	"context"
	"fmt"

	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

// CapabilityStore answers capability questions for origins
type CapabilityStore struct {
	repo storage.CapabilityRepository
}

// NewCapabilityStore creates a CapabilityStore over repo
func NewCapabilityStore(repo storage.CapabilityRepository) *CapabilityStore {
	return &CapabilityStore{repo: repo}
}

// Grant adds caps to the origin's grant, creating it if absent. Existing
// capabilities are never removed. Unknown capabilities are rejected.
func (s *CapabilityStore) Grant(ctx context.Context, origin string, caps []types.Capability) ([]types.Capability, error) {
	for _, c := range caps {
		if !c.IsValid() {
			return nil, fmt.Errorf("unknown capability: %q", c)
		}
	}
	merged, err := s.repo.Merge(ctx, origin, caps)
	if err != nil {
		return nil, fmt.Errorf("failed to grant capabilities: %w", err)
	}
	return merged, nil
}

// HasAll reports whether origin holds every capability in required.
// An origin without a grant holds nothing, not even the empty set.
func (s *CapabilityStore) HasAll(ctx context.Context, origin string, required []types.Capability) (bool, error) {
	held, err := s.repo.Get(ctx, origin)
	if err != nil {
		return false, fmt.Errorf("failed to read capabilities: %w", err)
	}
	return types.ContainsAll(held, required), nil
}

// Get returns the capabilities held by origin; empty when there is no grant
func (s *CapabilityStore) Get(ctx context.Context, origin string) ([]types.Capability, error) {
	held, err := s.repo.Get(ctx, origin)
	if err != nil {
		return nil, fmt.Errorf("failed to read capabilities: %w", err)
	}
	if held == nil {
		return []types.Capability{}, nil
	}
	return held, nil
}

// Revoke clears every capability of origin
func (s *CapabilityStore) Revoke(ctx context.Context, origin string) error {
	if err := s.repo.Delete(ctx, origin); err != nil {
		return fmt.Errorf("failed to revoke capabilities: %w", err)
	}
	return nil
}

// List returns every grant
func (s *CapabilityStore) List(ctx context.Context) ([]*types.CapabilityGrant, error) {
	return s.repo.List(ctx)
}

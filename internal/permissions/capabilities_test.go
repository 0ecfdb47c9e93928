package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://app.example"

func TestCapabilityStore_HasAll(t *testing.T) {
	ctx := context.Background()
	store := NewCapabilityStore(storage.NewMemoryCapabilityRepository())

	_, err := store.Grant(ctx, testOrigin, []types.Capability{types.CapAccessAddress, types.CapSignTransaction})
	require.NoError(t, err)

	tests := []struct {
		name     string
		origin   string
		required []types.Capability
		want     bool
	}{
		{"subset held", testOrigin, []types.Capability{types.CapSignTransaction}, true},
		{"exact set held", testOrigin, []types.Capability{types.CapAccessAddress, types.CapSignTransaction}, true},
		{"one missing", testOrigin, []types.Capability{types.CapAccessAddress, types.CapAccessAllAddresses}, false},
		{"empty required from granted origin", testOrigin, nil, true},
		{"no grant", "https://other.example", []types.Capability{types.CapAccessAddress}, false},
		{"empty required from ungranted origin", "https://other.example", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := store.HasAll(ctx, tt.origin, tt.required)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCapabilityStore_GrantIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewCapabilityStore(storage.NewMemoryCapabilityRepository())

	_, err := store.Grant(ctx, testOrigin, []types.Capability{types.CapAccessAddress, types.CapAccessAddress})
	require.NoError(t, err)
	got, err := store.Grant(ctx, testOrigin, []types.Capability{types.CapSignTransaction})
	require.NoError(t, err)

	assert.Equal(t, []types.Capability{types.CapAccessAddress, types.CapSignTransaction}, got)

	// Granting a subset again changes nothing.
	again, err := store.Grant(ctx, testOrigin, []types.Capability{types.CapAccessAddress})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCapabilityStore_GrantRejectsUnknown(t *testing.T) {
	store := NewCapabilityStore(storage.NewMemoryCapabilityRepository())

	_, err := store.Grant(context.Background(), testOrigin, []types.Capability{"FORMAT_DISK"})
	assert.Error(t, err)

	caps, err := store.Get(context.Background(), testOrigin)
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestCapabilityStore_GetAbsentIsEmpty(t *testing.T) {
	store := NewCapabilityStore(storage.NewMemoryCapabilityRepository())

	caps, err := store.Get(context.Background(), "https://nobody.example")
	require.NoError(t, err)
	assert.NotNil(t, caps)
	assert.Empty(t, caps)
}

func TestCapabilityStore_Revoke(t *testing.T) {
	ctx := context.Background()
	store := NewCapabilityStore(storage.NewMemoryCapabilityRepository())

	_, err := store.Grant(ctx, testOrigin, []types.Capability{types.CapAccessAddress})
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, testOrigin))

	ok, err := store.HasAll(ctx, testOrigin, []types.Capability{types.CapAccessAddress})
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingCapabilityRepo struct {
	storage.CapabilityRepository
}

func (failingCapabilityRepo) Get(context.Context, string) ([]types.Capability, error) {
	return nil, errors.New("connection reset")
}

func TestCapabilityStore_PropagatesRepositoryErrors(t *testing.T) {
	store := NewCapabilityStore(failingCapabilityRepo{})

	_, err := store.HasAll(context.Background(), testOrigin, []types.Capability{types.CapAccessAddress})
	assert.ErrorContains(t, err, "connection reset")
}

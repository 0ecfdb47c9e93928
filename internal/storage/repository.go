package storage

import (
	"context"
	"errors"

	"github.com/better-wallet/dapp-broker/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// CapabilityRepository persists capability grants keyed by canonical origin
type CapabilityRepository interface {
	// Get returns the capabilities held by origin, or nil if there is no grant.
	Get(ctx context.Context, origin string) ([]types.Capability, error)
	// Merge unions caps into the grant for origin, creating it if absent,
	// and returns the resulting set. It never removes a capability.
	Merge(ctx context.Context, origin string, caps []types.Capability) ([]types.Capability, error)
	// Delete removes the grant for origin.
	Delete(ctx context.Context, origin string) error
	// List returns every grant.
	List(ctx context.Context) ([]*types.CapabilityGrant, error)
}

// BlockListRepository persists blocked origins and page addresses
type BlockListRepository interface {
	Contains(ctx context.Context, entry string) (bool, error)
	Add(ctx context.Context, entry string) error
	Remove(ctx context.Context, entry string) error
	List(ctx context.Context) ([]*types.BlockEntry, error)
}

// ActivityQuery filters activity events
type ActivityQuery struct {
	Origin string
	Kind   string
	Limit  int
}

// ActivityRepository is an append-only log of accepted requests
type ActivityRepository interface {
	Append(ctx context.Context, event *types.ActivityEvent) error
	// List returns events oldest first.
	List(ctx context.Context, q ActivityQuery) ([]*types.ActivityEvent, error)
}

// KeyfileRepository persists sealed keyfiles
type KeyfileRepository interface {
	Put(ctx context.Context, record *types.KeyfileRecord) error
	// Get returns ErrNotFound if there is no keyfile for address.
	Get(ctx context.Context, address string) (*types.KeyfileRecord, error)
	List(ctx context.Context) ([]*types.KeyfileRecord, error)
	Delete(ctx context.Context, address string) error
}

// ProfileRepository persists user selections
type ProfileRepository interface {
	// ActiveAddress returns "" when nothing is selected.
	ActiveAddress(ctx context.Context) (string, error)
	SetActiveAddress(ctx context.Context, address string) error
}

// Repositories groups one implementation of every repository
type Repositories struct {
	Capabilities CapabilityRepository
	BlockList    BlockListRepository
	Activity     ActivityRepository
	Keyfiles     KeyfileRepository
	Profile      ProfileRepository
}

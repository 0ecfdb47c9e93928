package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/google/uuid"
)

// NewMemoryRepositories returns process-local repositories. They are used
// when no POSTGRES_DSN is configured and as fakes in tests.
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Capabilities: NewMemoryCapabilityRepository(),
		BlockList:    NewMemoryBlockListRepository(),
		Activity:     NewMemoryActivityRepository(),
		Keyfiles:     NewMemoryKeyfileRepository(),
		Profile:      NewMemoryProfileRepository(),
	}
}

// MemoryCapabilityRepository keeps grants in a map
type MemoryCapabilityRepository struct {
	mu     sync.RWMutex
	grants map[string]*types.CapabilityGrant
}

// NewMemoryCapabilityRepository creates an empty MemoryCapabilityRepository
func NewMemoryCapabilityRepository() *MemoryCapabilityRepository {
	return &MemoryCapabilityRepository{grants: make(map[string]*types.CapabilityGrant)}
}

func (r *MemoryCapabilityRepository) Get(_ context.Context, origin string) ([]types.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.grants[origin]
	if !ok {
		return nil, nil
	}
	return append([]types.Capability(nil), g.Capabilities...), nil
}

func (r *MemoryCapabilityRepository) Merge(_ context.Context, origin string, caps []types.Capability) ([]types.Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	g, ok := r.grants[origin]
	if !ok {
		g = &types.CapabilityGrant{Origin: origin, CreatedAt: now}
		r.grants[origin] = g
	}
	merged := append(append([]types.Capability(nil), g.Capabilities...), caps...)
	g.Capabilities = types.NormalizeCapabilities(merged)
	g.UpdatedAt = now

	return append([]types.Capability(nil), g.Capabilities...), nil
}

func (r *MemoryCapabilityRepository) Delete(_ context.Context, origin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, origin)
	return nil
}

func (r *MemoryCapabilityRepository) List(_ context.Context) ([]*types.CapabilityGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.CapabilityGrant, 0, len(r.grants))
	for _, g := range r.grants {
		c := *g
		c.Capabilities = append([]types.Capability(nil), g.Capabilities...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out, nil
}

// MemoryBlockListRepository keeps blocked entries in a set
type MemoryBlockListRepository struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryBlockListRepository creates an empty MemoryBlockListRepository
func NewMemoryBlockListRepository() *MemoryBlockListRepository {
	return &MemoryBlockListRepository{entries: make(map[string]time.Time)}
}

func (r *MemoryBlockListRepository) Contains(_ context.Context, entry string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[entry]
	return ok, nil
}

func (r *MemoryBlockListRepository) Add(_ context.Context, entry string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry]; !ok {
		r.entries[entry] = time.Now().UTC()
	}
	return nil
}

func (r *MemoryBlockListRepository) Remove(_ context.Context, entry string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, entry)
	return nil
}

func (r *MemoryBlockListRepository) List(_ context.Context) ([]*types.BlockEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.BlockEntry, 0, len(r.entries))
	for entry, at := range r.entries {
		out = append(out, &types.BlockEntry{Entry: entry, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out, nil
}

// MemoryActivityRepository is an append-only slice of events
type MemoryActivityRepository struct {
	mu     sync.RWMutex
	events []types.ActivityEvent
}

// NewMemoryActivityRepository creates an empty MemoryActivityRepository
func NewMemoryActivityRepository() *MemoryActivityRepository {
	return &MemoryActivityRepository{}
}

func (r *MemoryActivityRepository) Append(_ context.Context, event *types.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *MemoryActivityRepository) List(_ context.Context, q ActivityQuery) ([]*types.ActivityEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.ActivityEvent
	for i := range r.events {
		e := r.events[i]
		if q.Origin != "" && e.Origin != q.Origin {
			continue
		}
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		out = append(out, &e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// MemoryKeyfileRepository keeps sealed keyfiles in insertion order
type MemoryKeyfileRepository struct {
	mu      sync.RWMutex
	order   []string
	records map[string]types.KeyfileRecord
}

// NewMemoryKeyfileRepository creates an empty MemoryKeyfileRepository
func NewMemoryKeyfileRepository() *MemoryKeyfileRepository {
	return &MemoryKeyfileRepository{records: make(map[string]types.KeyfileRecord)}
}

func (r *MemoryKeyfileRepository) Put(_ context.Context, record *types.KeyfileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[record.Address]
	if ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = time.Now().UTC()
		r.order = append(r.order, record.Address)
	}
	stored := *record
	stored.SealedBlob = append([]byte(nil), record.SealedBlob...)
	r.records[record.Address] = stored
	return nil
}

func (r *MemoryKeyfileRepository) Get(_ context.Context, address string) (*types.KeyfileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[address]
	if !ok {
		return nil, ErrNotFound
	}
	rec.SealedBlob = append([]byte(nil), rec.SealedBlob...)
	return &rec, nil
}

func (r *MemoryKeyfileRepository) List(_ context.Context) ([]*types.KeyfileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.KeyfileRecord, 0, len(r.order))
	for _, addr := range r.order {
		rec := r.records[addr]
		rec.SealedBlob = append([]byte(nil), rec.SealedBlob...)
		out = append(out, &rec)
	}
	return out, nil
}

func (r *MemoryKeyfileRepository) Delete(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[address]; !ok {
		return nil
	}
	delete(r.records, address)
	for i, a := range r.order {
		if a == address {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// MemoryProfileRepository holds the active address
type MemoryProfileRepository struct {
	mu     sync.RWMutex
	active string
}

// NewMemoryProfileRepository creates an empty MemoryProfileRepository
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{}
}

func (r *MemoryProfileRepository) ActiveAddress(_ context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, nil
}

func (r *MemoryProfileRepository) SetActiveAddress(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = address
	return nil
}

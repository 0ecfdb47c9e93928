package types

import (
	"fmt"
	"sort"
	"time"
)

// Capability is a single named permission an origin can hold.
// Capabilities are flat: none implies another.
type Capability string

// Capability constants
const (
	CapAccessAddress      Capability = "ACCESS_ADDRESS"
	CapAccessAllAddresses Capability = "ACCESS_ALL_ADDRESSES"
	CapSignTransaction    Capability = "SIGN_TRANSACTION"
)

// AllCapabilities returns the closed set of known capabilities
func AllCapabilities() []Capability {
	return []Capability{
		CapAccessAddress,
		CapAccessAllAddresses,
		CapSignTransaction,
	}
}

// IsValid reports whether c is one of the known capabilities
func (c Capability) IsValid() bool {
	switch c {
	case CapAccessAddress, CapAccessAllAddresses, CapSignTransaction:
		return true
	}
	return false
}

// ParseCapabilities converts raw names into a normalized capability set.
// Unknown names are rejected.
func ParseCapabilities(names []string) ([]Capability, error) {
	caps := make([]Capability, 0, len(names))
	for _, name := range names {
		c := Capability(name)
		if !c.IsValid() {
			return nil, fmt.Errorf("unknown capability: %q", name)
		}
		caps = append(caps, c)
	}
	return NormalizeCapabilities(caps), nil
}

// NormalizeCapabilities removes duplicates and sorts the set so two equal
// sets always compare and serialize the same way.
func NormalizeCapabilities(caps []Capability) []Capability {
	seen := make(map[Capability]struct{}, len(caps))
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ContainsAll reports whether every capability in required is in held.
// An empty held set never satisfies anything.
func ContainsAll(held, required []Capability) bool {
	if len(held) == 0 {
		return false
	}
	set := make(map[Capability]struct{}, len(held))
	for _, c := range held {
		set[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

// CapabilityGrant is the capability set held by one origin
type CapabilityGrant struct {
	Origin       string       `json:"origin"`
	Capabilities []Capability `json:"capabilities"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// BlockEntry is an origin or raw page address that may not issue requests
type BlockEntry struct {
	Entry     string    `json:"entry"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityEvent records one accepted request
type ActivityEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Origin    string    `json:"origin"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyfileRecord holds the encrypted keyfile for one address.
// SealedBlob is the passphrase-encrypted keyfile additionally wrapped by
// the configured KMS provider; it is never stored in plaintext.
type KeyfileRecord struct {
	Address    string    `json:"address"`
	SealedBlob []byte    `json:"-"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"created_at"`
}

// Channel identifies the page context a request arrived on
type Channel struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Valid reports whether the channel context is resolvable
func (c Channel) Valid() bool {
	return c.ID != "" && c.URL != ""
}

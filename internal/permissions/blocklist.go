package permissions

import (
	"context"
	"fmt"
	"os"

	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/origin"
	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/better-wallet/dapp-broker/pkg/types"
	"gopkg.in/yaml.v3"
)

// BlockList answers whether a page address may issue requests at all
type BlockList struct {
	repo storage.BlockListRepository
}

// NewBlockList creates a BlockList over repo
func NewBlockList(repo storage.BlockListRepository) *BlockList {
	return &BlockList{repo: repo}
}

// IsBlocked checks the raw address first, then its canonical origin.
// An address that has no resolvable origin is only matched verbatim.
func (b *BlockList) IsBlocked(ctx context.Context, address string) (bool, error) {
	blocked, err := b.repo.Contains(ctx, address)
	if err != nil {
		return false, fmt.Errorf("failed to check block list: %w", err)
	}
	if blocked {
		return true, nil
	}

	o, err := origin.Resolve(address)
	if err != nil || o == address {
		return false, nil
	}

	blocked, err = b.repo.Contains(ctx, o)
	if err != nil {
		return false, fmt.Errorf("failed to check block list: %w", err)
	}
	return blocked, nil
}

// Block adds entry. Entries that parse as page addresses are stored as
// their canonical origin so every path on the site is covered.
func (b *BlockList) Block(ctx context.Context, entry string) (string, error) {
	if o, err := origin.Resolve(entry); err == nil {
		entry = o
	}
	if err := b.repo.Add(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to block %s: %w", entry, err)
	}
	return entry, nil
}

// Unblock removes entry, both verbatim and as a canonical origin
func (b *BlockList) Unblock(ctx context.Context, entry string) error {
	if err := b.repo.Remove(ctx, entry); err != nil {
		return fmt.Errorf("failed to unblock %s: %w", entry, err)
	}
	if o, err := origin.Resolve(entry); err == nil && o != entry {
		if err := b.repo.Remove(ctx, o); err != nil {
			return fmt.Errorf("failed to unblock %s: %w", o, err)
		}
	}
	return nil
}

// List returns every block entry
func (b *BlockList) List(ctx context.Context) ([]*types.BlockEntry, error) {
	return b.repo.List(ctx)
}

// seedFile is the on-disk shape of BLOCKLIST_FILE
type seedFile struct {
	Blocked []string `yaml:"blocked"`
}

// LoadBlockList blocks every entry listed in the YAML file at path.
// It returns the number of entries applied.
func (b *BlockList) LoadBlockList(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read block list file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse block list file: %w", err)
	}

	for _, entry := range seed.Blocked {
		stored, err := b.Block(ctx, entry)
		if err != nil {
			return 0, err
		}
		logger.Debug(ctx, "block list entry loaded", "entry", stored)
	}
	return len(seed.Blocked), nil
}

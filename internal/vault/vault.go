// Package vault stores keyfiles and remembers which address is active.
// Keyfiles are held passphrase-encrypted and additionally sealed by the
// configured KMS provider; plaintext only exists inside OpenActive.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/better-wallet/dapp-broker/internal/keyexec"
	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

var (
	// ErrNoActiveAddress is returned when no address is selected
	ErrNoActiveAddress = errors.New("no active address")
	// ErrUnknownAddress is returned for an address with no stored keyfile
	ErrUnknownAddress = errors.New("no keyfile for address")
)

// Vault manages keyfile records and the active address
type Vault struct {
	keyfiles storage.KeyfileRepository
	profile  storage.ProfileRepository
	sealer   keyexec.Sealer
	exec     keyexec.KeyExecutor
}

// New creates a Vault
func New(keyfiles storage.KeyfileRepository, profile storage.ProfileRepository, sealer keyexec.Sealer, exec keyexec.KeyExecutor) *Vault {
	return &Vault{
		keyfiles: keyfiles,
		profile:  profile,
		sealer:   sealer,
		exec:     exec,
	}
}

// AddKeyfile encrypts a plaintext keyfile under passphrase, seals it and
// stores it. The first keyfile added becomes the active address.
func (v *Vault) AddKeyfile(ctx context.Context, plaintext []byte, passphrase string) (string, error) {
	kf, err := keyexec.ParseKeyfile(plaintext)
	if err != nil {
		return "", err
	}
	address := kf.Address
	kf.Destroy()

	encrypted, err := v.exec.EncryptKeyfile(ctx, plaintext, passphrase)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt keyfile: %w", err)
	}
	sealed, err := v.sealer.Seal(ctx, address, encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to seal keyfile: %w", err)
	}

	if err := v.keyfiles.Put(ctx, &types.KeyfileRecord{
		Address:    address,
		SealedBlob: sealed,
		Provider:   v.sealer.Provider(),
	}); err != nil {
		return "", err
	}

	active, err := v.profile.ActiveAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read active address: %w", err)
	}
	if active == "" {
		if err := v.profile.SetActiveAddress(ctx, address); err != nil {
			return "", err
		}
	}

	logger.Info(ctx, "keyfile added", "address", address, "provider", v.sealer.Provider())
	return address, nil
}

// HasWallets reports whether at least one keyfile is stored
func (v *Vault) HasWallets(ctx context.Context) (bool, error) {
	records, err := v.keyfiles.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list keyfiles: %w", err)
	}
	return len(records) > 0, nil
}

// Addresses lists every stored address in insertion order
func (v *Vault) Addresses(ctx context.Context) ([]string, error) {
	records, err := v.keyfiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keyfiles: %w", err)
	}
	addresses := make([]string, 0, len(records))
	for _, r := range records {
		addresses = append(addresses, r.Address)
	}
	return addresses, nil
}

// ActiveAddress returns the selected address or ErrNoActiveAddress
func (v *Vault) ActiveAddress(ctx context.Context) (string, error) {
	address, err := v.profile.ActiveAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read active address: %w", err)
	}
	if address == "" {
		return "", ErrNoActiveAddress
	}
	return address, nil
}

// SetActiveAddress selects address, which must have a stored keyfile
func (v *Vault) SetActiveAddress(ctx context.Context, address string) error {
	if _, err := v.keyfiles.Get(ctx, address); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUnknownAddress
		}
		return err
	}
	return v.profile.SetActiveAddress(ctx, address)
}

// RemoveKeyfile deletes the keyfile for address. Removing the active
// address selects the oldest remaining one, if any.
func (v *Vault) RemoveKeyfile(ctx context.Context, address string) error {
	if err := v.keyfiles.Delete(ctx, address); err != nil {
		return err
	}

	active, err := v.profile.ActiveAddress(ctx)
	if err != nil {
		return fmt.Errorf("failed to read active address: %w", err)
	}
	if active != address {
		return nil
	}

	remaining, err := v.Addresses(ctx)
	if err != nil {
		return err
	}
	next := ""
	if len(remaining) > 0 {
		next = remaining[0]
	}
	return v.profile.SetActiveAddress(ctx, next)
}

// EncryptedKeyfile returns the passphrase-encrypted keyfile for address
// with the at-rest seal removed
func (v *Vault) EncryptedKeyfile(ctx context.Context, address string) ([]byte, error) {
	rec, err := v.keyfiles.Get(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownAddress
		}
		return nil, err
	}

	encrypted, err := v.sealer.Unseal(ctx, address, rec.SealedBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal keyfile: %w", err)
	}
	return encrypted, nil
}

// OpenActive decrypts the active address's keyfile. The caller must
// Destroy the result.
func (v *Vault) OpenActive(ctx context.Context, passphrase string) (*keyexec.Keyfile, error) {
	address, err := v.ActiveAddress(ctx)
	if err != nil {
		return nil, err
	}
	encrypted, err := v.EncryptedKeyfile(ctx, address)
	if err != nil {
		return nil, err
	}
	return v.exec.DecryptKeyfile(ctx, encrypted, passphrase)
}

// Unlock checks passphrase against the active keyfile and, if it opens,
// unlocks session with it
func (v *Vault) Unlock(ctx context.Context, session *Session, passphrase string) error {
	kf, err := v.OpenActive(ctx, passphrase)
	if err != nil {
		return err
	}
	kf.Destroy()

	session.Unlock(passphrase)
	logger.Info(ctx, "vault session unlocked")
	return nil
}

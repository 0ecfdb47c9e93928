// Package keyexec holds every operation that touches key material:
// passphrase encryption of keyfiles, at-rest sealing, and transaction
// signing. Plaintext keys never leave this package except as *Keyfile
// values, which callers must Destroy when done.
package keyexec

import (
	"context"

	"github.com/better-wallet/dapp-broker/pkg/types"
)

// KeyExecutor defines the interface for key execution backends
type KeyExecutor interface {
	// EncryptKeyfile encrypts a plaintext keyfile under passphrase
	EncryptKeyfile(ctx context.Context, plaintext []byte, passphrase string) ([]byte, error)

	// DecryptKeyfile decrypts and parses a keyfile. The caller owns the
	// returned Keyfile and must Destroy it.
	DecryptKeyfile(ctx context.Context, encrypted []byte, passphrase string) (*Keyfile, error)

	// SignTransaction signs tx with the keyfile's key and returns a new
	// transaction carrying the signature and id
	SignTransaction(ctx context.Context, tx *types.Transaction, kf *Keyfile, opts *types.SignatureOptions) (*types.Transaction, error)
}

// LocalExecutor runs every key operation in-process
type LocalExecutor struct {
	cipher *KeyfileCipher
	signer Signer
}

// NewLocalExecutor creates a LocalExecutor. workFactor is the scrypt log2
// work factor used for newly encrypted keyfiles.
func NewLocalExecutor(workFactor int) *LocalExecutor {
	return &LocalExecutor{cipher: NewKeyfileCipher(workFactor)}
}

func (e *LocalExecutor) EncryptKeyfile(ctx context.Context, plaintext []byte, passphrase string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseKeyfile(plaintext); err != nil {
		return nil, err
	}
	return e.cipher.Encrypt(plaintext, passphrase)
}

func (e *LocalExecutor) DecryptKeyfile(ctx context.Context, encrypted []byte, passphrase string) (*Keyfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plaintext, err := e.cipher.Decrypt(encrypted, passphrase)
	if err != nil {
		return nil, err
	}
	defer zero(plaintext)

	return ParseKeyfile(plaintext)
}

func (e *LocalExecutor) SignTransaction(ctx context.Context, tx *types.Transaction, kf *Keyfile, opts *types.SignatureOptions) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.signer.Sign(tx, kf, opts)
}

var _ KeyExecutor = (*LocalExecutor)(nil)

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

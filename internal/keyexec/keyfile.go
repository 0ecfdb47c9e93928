package keyexec

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrDecryptionFailed is returned when a keyfile cannot be opened with the
// supplied passphrase
var ErrDecryptionFailed = errors.New("keyfile decryption failed")

// ErrInvalidKeyfile is returned for malformed keyfile contents
var ErrInvalidKeyfile = errors.New("invalid keyfile")

// keyfileJSON is the plaintext keyfile format accepted on import
type keyfileJSON struct {
	Address    string `json:"address,omitempty"`
	PrivateKey string `json:"private_key"`
}

// Keyfile is a decrypted keyfile
type Keyfile struct {
	Address string
	key     *ecdsa.PrivateKey
}

// ParseKeyfile parses a plaintext keyfile. A declared address must match
// the one derived from the private key.
func ParseKeyfile(raw []byte) (*Keyfile, error) {
	var kj keyfileJSON
	if err := json.Unmarshal(raw, &kj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyfile, err)
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(kj.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not hex", ErrInvalidKeyfile)
	}
	defer zero(keyBytes)

	key, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyfile, err)
	}

	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	if kj.Address != "" && !strings.EqualFold(kj.Address, address) {
		key.D.SetInt64(0)
		return nil, fmt.Errorf("%w: address %s does not match key", ErrInvalidKeyfile, kj.Address)
	}

	return &Keyfile{Address: address, key: key}, nil
}

// Owner returns the public key as carried in a transaction's owner field:
// base64url of the uncompressed secp256k1 point
func (k *Keyfile) Owner() string {
	return base64.RawURLEncoding.EncodeToString(ethcrypto.FromECDSAPub(&k.key.PublicKey))
}

// Destroy zeroes the private key. The Keyfile is unusable afterwards.
func (k *Keyfile) Destroy() {
	if k != nil && k.key != nil && k.key.D != nil {
		k.key.D.SetInt64(0)
		k.key = nil
	}
}

// KeyfileCipher encrypts keyfiles under a user passphrase with age's
// scrypt recipient
type KeyfileCipher struct {
	workFactor int
}

// NewKeyfileCipher creates a KeyfileCipher; workFactor <= 0 keeps age's default
func NewKeyfileCipher(workFactor int) *KeyfileCipher {
	return &KeyfileCipher{workFactor: workFactor}
}

// Encrypt encrypts plaintext under passphrase
func (c *KeyfileCipher) Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if c.workFactor > 0 {
		recipient.SetWorkFactor(c.workFactor)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt opens an encrypted keyfile. Any failure, including a wrong
// passphrase, wraps ErrDecryptionFailed.
func (c *KeyfileCipher) Decrypt(encrypted []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	r, err := age.Decrypt(bytes.NewReader(encrypted), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

package keyexec

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/better-wallet/dapp-broker/pkg/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gowebpki/jcs"
)

// Digest names accepted in SignatureOptions
const (
	DigestKeccak256 = "keccak256"
	DigestSHA256    = "sha256"
)

// Signer produces secp256k1 signatures over the canonical transaction payload
type Signer struct{}

// Sign signs tx with kf. The transaction owner must be empty or equal to
// the keyfile's owner; the input is not modified.
func (Signer) Sign(tx *types.Transaction, kf *Keyfile, opts *types.SignatureOptions) (*types.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is required")
	}
	if kf == nil || kf.key == nil {
		return nil, fmt.Errorf("keyfile is not available")
	}

	signed := tx.Clone()
	owner := kf.Owner()
	if signed.Owner == "" {
		signed.Owner = owner
	} else if signed.Owner != owner {
		return nil, fmt.Errorf("transaction owner does not match keyfile")
	}

	payload, err := SigningPayload(signed)
	if err != nil {
		return nil, err
	}
	digest, err := Digest(payload, opts)
	if err != nil {
		return nil, err
	}

	sig, err := ethcrypto.Sign(digest, kf.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	id := sha256.Sum256(sig)
	signed.Signature = base64.RawURLEncoding.EncodeToString(sig)
	signed.ID = base64.RawURLEncoding.EncodeToString(id[:])
	return signed, nil
}

// SigningPayload returns the RFC 8785 canonical JSON of tx without its id
// and signature
func SigningPayload(tx *types.Transaction) ([]byte, error) {
	unsigned := tx.Clone()
	unsigned.ID = ""
	unsigned.Signature = ""

	raw, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize transaction: %w", err)
	}
	return canonical, nil
}

// Digest hashes payload with the digest selected by opts (keccak256 by default)
func Digest(payload []byte, opts *types.SignatureOptions) ([]byte, error) {
	name := DigestKeccak256
	if opts != nil && opts.Digest != "" {
		name = opts.Digest
	}

	switch name {
	case DigestKeccak256:
		return ethcrypto.Keccak256(payload), nil
	case DigestSHA256:
		sum := sha256.Sum256(payload)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("unsupported digest: %s", name)
	}
}

// Verify checks that tx carries a valid signature by its owner and that
// its id is derived from the signature
func Verify(tx *types.Transaction, opts *types.SignatureOptions) error {
	sig, err := base64.RawURLEncoding.DecodeString(tx.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	owner, err := base64.RawURLEncoding.DecodeString(tx.Owner)
	if err != nil {
		return fmt.Errorf("invalid owner encoding: %w", err)
	}

	payload, err := SigningPayload(tx)
	if err != nil {
		return err
	}
	digest, err := Digest(payload, opts)
	if err != nil {
		return err
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}
	if string(ethcrypto.FromECDSAPub(pub)) != string(owner) {
		return fmt.Errorf("signature was not made by the transaction owner")
	}

	id := sha256.Sum256(sig)
	if tx.ID != base64.RawURLEncoding.EncodeToString(id[:]) {
		return fmt.Errorf("transaction id does not match signature")
	}
	return nil
}

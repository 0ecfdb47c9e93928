package keyexec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
)

// Sealer wraps passphrase-encrypted keyfiles once more before they reach
// the durable store. Every blob is bound to the address it belongs to, so
// a blob copied onto another record fails to unseal.
type Sealer interface {
	Seal(ctx context.Context, address string, data []byte) ([]byte, error)
	Unseal(ctx context.Context, address string, sealed []byte) ([]byte, error)

	// Provider returns the provider name (e.g., "local", "aws-kms", "vault")
	Provider() string
}

// SealerType represents supported sealing providers
type SealerType string

const (
	// SealerLocal uses a local master key with AES-GCM
	SealerLocal SealerType = "local"

	// SealerAWSKMS uses AWS KMS with an encryption context
	SealerAWSKMS SealerType = "aws-kms"

	// SealerVault uses the HashiCorp Vault Transit engine
	SealerVault SealerType = "vault"
)

// SealerConfig contains configuration for sealing providers
type SealerConfig struct {
	Provider string

	// LocalMasterKeyHex is a hex-encoded 32-byte key
	LocalMasterKeyHex string

	AWSKMSKeyID  string
	AWSKMSRegion string

	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// LocalSealer seals with AES-256-GCM under a local master key, using the
// address as additional authenticated data
type LocalSealer struct {
	aead cipher.AEAD
}

// NewLocalSealer creates a LocalSealer from a hex-encoded 32-byte key
func NewLocalSealer(masterKeyHex string) (*LocalSealer, error) {
	if masterKeyHex == "" {
		return nil, fmt.Errorf("master key is required for local sealer")
	}

	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &LocalSealer{aead: gcm}, nil
}

func (s *LocalSealer) Seal(_ context.Context, address string, data []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, data, []byte(address)), nil
}

func (s *LocalSealer) Unseal(_ context.Context, address string, sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed blob too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(address))
	if err != nil {
		return nil, fmt.Errorf("failed to unseal: %w", err)
	}
	return plaintext, nil
}

func (s *LocalSealer) Provider() string {
	return string(SealerLocal)
}

// kmsAPI is the subset of the AWS KMS client used for sealing
type kmsAPI interface {
	Encrypt(ctx context.Context, in *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSSealer seals through AWS KMS. The address travels as encryption
// context, which KMS requires again on decrypt.
type AWSKMSSealer struct {
	keyID  string
	client kmsAPI
}

// NewAWSKMSSealer creates an AWSKMSSealer using the default credential chain
func NewAWSKMSSealer(ctx context.Context, keyID, region string) (*AWSKMSSealer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSSealer{keyID: keyID, client: kms.NewFromConfig(cfg)}, nil
}

func (s *AWSKMSSealer) Seal(ctx context.Context, address string, data []byte) ([]byte, error) {
	out, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(s.keyID),
		Plaintext:         data,
		EncryptionContext: map[string]string{"address": address},
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (s *AWSKMSSealer) Unseal(ctx context.Context, address string, sealed []byte) ([]byte, error) {
	out, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(s.keyID),
		CiphertextBlob:    sealed,
		EncryptionContext: map[string]string{"address": address},
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return out.Plaintext, nil
}

func (s *AWSKMSSealer) Provider() string {
	return string(SealerAWSKMS)
}

// VaultSealer seals through the Vault Transit engine, passing the address
// as associated data
type VaultSealer struct {
	transitKey string
	client     *vault.Client
}

// NewVaultSealer creates a VaultSealer
func NewVaultSealer(address, token, transitKey string) (*VaultSealer, error) {
	if address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultSealer{transitKey: transitKey, client: client}, nil
}

func (s *VaultSealer) Seal(ctx context.Context, address string, data []byte) ([]byte, error) {
	secret, err := s.client.Logical().WriteWithContext(ctx, "transit/encrypt/"+s.transitKey, map[string]interface{}{
		"plaintext":       base64.StdEncoding.EncodeToString(data),
		"associated_data": base64.StdEncoding.EncodeToString([]byte(address)),
	})
	if err != nil {
		return nil, fmt.Errorf("vault transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault transit encrypt returned empty response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault transit encrypt: ciphertext not found in response")
	}
	return []byte(ciphertext), nil
}

func (s *VaultSealer) Unseal(ctx context.Context, address string, sealed []byte) ([]byte, error) {
	secret, err := s.client.Logical().WriteWithContext(ctx, "transit/decrypt/"+s.transitKey, map[string]interface{}{
		"ciphertext":      string(sealed),
		"associated_data": base64.StdEncoding.EncodeToString([]byte(address)),
	})
	if err != nil {
		return nil, fmt.Errorf("vault transit decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault transit decrypt returned empty response")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault transit decrypt: plaintext not found in response")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("vault transit decrypt: failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

func (s *VaultSealer) Provider() string {
	return string(SealerVault)
}

// NewSealer creates a Sealer based on the configuration
func NewSealer(ctx context.Context, cfg *SealerConfig) (Sealer, error) {
	switch SealerType(cfg.Provider) {
	case SealerLocal, "":
		return NewLocalSealer(cfg.LocalMasterKeyHex)
	case SealerAWSKMS:
		return NewAWSKMSSealer(ctx, cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case SealerVault:
		return NewVaultSealer(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported KMS provider: %s (supported: %s, %s, %s)",
			cfg.Provider, SealerLocal, SealerAWSKMS, SealerVault)
	}
}

var (
	_ Sealer = (*LocalSealer)(nil)
	_ Sealer = (*AWSKMSSealer)(nil)
	_ Sealer = (*VaultSealer)(nil)
)

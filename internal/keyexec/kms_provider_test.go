package keyexec

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewLocalSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{"valid", testMasterKeyHex, ""},
		{"empty", "", "master key is required"},
		{"not hex", "test-master-key-32-bytes-long!!!", "hex encoded"},
		{"too short", "0011", "32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLocalSealer(tt.key)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "local", s.Provider())
		})
	}
}

func TestLocalSealer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalSealer(testMasterKeyHex)
	require.NoError(t, err)

	sealed, err := s.Seal(ctx, "0xabc", []byte("age-encrypted-keyfile"))
	require.NoError(t, err)

	plain, err := s.Unseal(ctx, "0xabc", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("age-encrypted-keyfile"), plain)

	t.Run("bound to address", func(t *testing.T) {
		_, err := s.Unseal(ctx, "0xdef", sealed)
		assert.Error(t, err)
	})

	t.Run("nonce is random", func(t *testing.T) {
		again, err := s.Seal(ctx, "0xabc", []byte("age-encrypted-keyfile"))
		require.NoError(t, err)
		assert.NotEqual(t, sealed, again)
	})

	t.Run("short blob", func(t *testing.T) {
		_, err := s.Unseal(ctx, "0xabc", []byte{1, 2})
		assert.Error(t, err)
	})
}

type fakeKMS struct {
	lastEncryptContext map[string]string
	failDecrypt        bool
}

func (f *fakeKMS) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	f.lastEncryptContext = in.EncryptionContext
	blob := append([]byte(in.EncryptionContext["address"]+"|"), in.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: blob}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if f.failDecrypt {
		return nil, errors.New("AccessDeniedException")
	}
	prefix := in.EncryptionContext["address"] + "|"
	if !strings.HasPrefix(string(in.CiphertextBlob), prefix) {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: in.CiphertextBlob[len(prefix):]}, nil
}

func TestAWSKMSSealer_UsesEncryptionContext(t *testing.T) {
	ctx := context.Background()
	fake := &fakeKMS{}
	s := &AWSKMSSealer{keyID: "alias/broker", client: fake}

	sealed, err := s.Seal(ctx, "0xabc", []byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"address": "0xabc"}, fake.lastEncryptContext)

	plain, err := s.Unseal(ctx, "0xabc", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), plain)

	_, err = s.Unseal(ctx, "0xdef", sealed)
	assert.Error(t, err)

	fake.failDecrypt = true
	_, err = s.Unseal(ctx, "0xabc", sealed)
	assert.ErrorContains(t, err, "AWS KMS decrypt failed")
}

func newVaultTransitServer(t *testing.T) *httptest.Server {
	t.Helper()

	type transitRequest struct {
		Plaintext      string `json:"plaintext"`
		Ciphertext     string `json:"ciphertext"`
		AssociatedData string `json:"associated_data"`
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var data map[string]interface{}
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/transit/encrypt/"):
			data = map[string]interface{}{"ciphertext": "vault:v1:" + req.AssociatedData + ":" + req.Plaintext}
		case strings.HasPrefix(r.URL.Path, "/v1/transit/decrypt/"):
			rest := strings.TrimPrefix(req.Ciphertext, "vault:v1:")
			ad, pt, ok := strings.Cut(rest, ":")
			if !ok || ad != req.AssociatedData {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"errors":["invalid associated data"]}`))
				return
			}
			data = map[string]interface{}{"plaintext": pt}
		default:
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func TestVaultSealer_RoundTrip(t *testing.T) {
	server := newVaultTransitServer(t)
	defer server.Close()

	s, err := NewVaultSealer(server.URL, "token", "broker-keyfiles")
	require.NoError(t, err)
	assert.Equal(t, "vault", s.Provider())

	ctx := context.Background()
	sealed, err := s.Seal(ctx, "0xabc", []byte("blob"))
	require.NoError(t, err)

	plain, err := s.Unseal(ctx, "0xabc", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), plain)

	_, err = s.Unseal(ctx, "0xdef", sealed)
	assert.ErrorContains(t, err, "vault transit decrypt failed")
}

func TestNewSealer(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to local", func(t *testing.T) {
		s, err := NewSealer(ctx, &SealerConfig{LocalMasterKeyHex: testMasterKeyHex})
		require.NoError(t, err)
		assert.Equal(t, "local", s.Provider())
	})

	t.Run("aws-kms needs key id", func(t *testing.T) {
		_, err := NewSealer(ctx, &SealerConfig{Provider: "aws-kms", AWSKMSRegion: "us-east-1"})
		assert.Error(t, err)
	})

	t.Run("vault needs address", func(t *testing.T) {
		_, err := NewSealer(ctx, &SealerConfig{Provider: "vault", VaultToken: "t", VaultTransitKey: "k"})
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewSealer(ctx, &SealerConfig{Provider: "hsm"})
		assert.ErrorContains(t, err, "unsupported KMS provider")
	})
}

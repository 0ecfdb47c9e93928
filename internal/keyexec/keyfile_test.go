package keyexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Low scrypt cost keeps the suite fast.
const testWorkFactor = 10

func TestParseKeyfile(t *testing.T) {
	raw, address := newPlainKeyfile(t)

	t.Run("valid keyfile", func(t *testing.T) {
		kf, err := ParseKeyfile(raw)
		require.NoError(t, err)
		defer kf.Destroy()

		assert.Equal(t, address, kf.Address)
		assert.NotEmpty(t, kf.Owner())
	})

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "private key please"},
		{"not hex", `{"private_key":"zz"}`},
		{"wrong length", `{"private_key":"abcd"}`},
		{"address mismatch", `{"address":"0x0000000000000000000000000000000000000001","private_key":"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKeyfile([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidKeyfile)
		})
	}
}

func TestKeyfile_Destroy(t *testing.T) {
	raw, _ := newPlainKeyfile(t)
	kf, err := ParseKeyfile(raw)
	require.NoError(t, err)

	kf.Destroy()
	assert.Nil(t, kf.key)

	// Second call is a no-op.
	kf.Destroy()
}

func TestKeyfileCipher_RoundTrip(t *testing.T) {
	raw, _ := newPlainKeyfile(t)
	c := NewKeyfileCipher(testWorkFactor)

	encrypted, err := c.Encrypt(raw, "correct horse")
	require.NoError(t, err)
	assert.NotContains(t, string(encrypted), "private_key")

	plaintext, err := c.Decrypt(encrypted, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, raw, plaintext)

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := c.Decrypt(encrypted, "battery staple")
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("garbage input", func(t *testing.T) {
		_, err := c.Decrypt([]byte("not age"), "correct horse")
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("empty passphrase rejected on encrypt", func(t *testing.T) {
		_, err := c.Encrypt(raw, "")
		assert.Error(t, err)
	})
}

func TestLocalExecutor_EncryptDecryptKeyfile(t *testing.T) {
	ctx := context.Background()
	raw, address := newPlainKeyfile(t)
	exec := NewLocalExecutor(testWorkFactor)

	encrypted, err := exec.EncryptKeyfile(ctx, raw, "pw")
	require.NoError(t, err)

	kf, err := exec.DecryptKeyfile(ctx, encrypted, "pw")
	require.NoError(t, err)
	defer kf.Destroy()
	assert.Equal(t, address, kf.Address)

	t.Run("rejects invalid plaintext before encrypting", func(t *testing.T) {
		_, err := exec.EncryptKeyfile(ctx, []byte(`{}`), "pw")
		assert.ErrorIs(t, err, ErrInvalidKeyfile)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := exec.DecryptKeyfile(cctx, encrypted, "pw")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactHeaders(t *testing.T) {
	t.Run("redacts sensitive headers and preserves others", func(t *testing.T) {
		h := make(http.Header)
		h.Set("Authorization", "Bearer popup-token")
		h.Set("Cookie", "session=abc")
		h.Set("X-Page-URL", "https://dapp.example")

		redacted := RedactHeaders(h)

		assert.Equal(t, "Bearer [REDACTED]", redacted.Get("Authorization"))
		assert.Equal(t, "[REDACTED]", redacted.Get("Cookie"))
		assert.Equal(t, "https://dapp.example", redacted.Get("X-Page-URL"))

		// Original must be unchanged
		assert.Equal(t, "Bearer popup-token", h.Get("Authorization"))
	})

	t.Run("handles non-scheme Authorization values", func(t *testing.T) {
		h := make(http.Header)
		h.Set("Authorization", "abc")

		redacted := RedactHeaders(h)
		assert.Equal(t, "[REDACTED]", redacted.Get("Authorization"))
	})

	t.Run("nil header", func(t *testing.T) {
		assert.Nil(t, RedactHeaders(nil))
	})
}

func TestStripCredentialHeaders(t *testing.T) {
	h := make(http.Header)
	h.Set("Authorization", "Bearer abc")
	h.Set("Content-Type", "application/json")

	StripCredentialHeaders(h)

	assert.Empty(t, h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

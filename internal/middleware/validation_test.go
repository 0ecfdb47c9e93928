package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	assert.True(t, v.Required("passphrase", "pw"))
	assert.False(t, v.Required("passphrase", "  "))
	assert.True(t, v.MinLength("passphrase", "longenough", 8))
	assert.False(t, v.MinLength("passphrase", "short", 8))
	assert.True(t, v.Address("address", "0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.False(t, v.Address("address", "52908400098527886E0F7030069857D2E4169EE7"))
	assert.False(t, v.Address("address", "0x1234"))

	o, ok := v.Origin("origin", "HTTPS://Dapp.Example:443/swap?x=1")
	assert.True(t, ok)
	assert.Equal(t, "https://dapp.example", o)
	_, ok = v.Origin("origin", "dapp")
	assert.False(t, ok)

	caps, ok := v.Capabilities("permissions", []string{"SIGN_TRANSACTION", "ACCESS_ADDRESS", "ACCESS_ADDRESS"})
	assert.True(t, ok)
	assert.Equal(t, []types.Capability{types.CapAccessAddress, types.CapSignTransaction}, caps)
	_, ok = v.Capabilities("permissions", nil)
	assert.False(t, ok)
	_, ok = v.Capabilities("permissions", []string{"MINT_MONEY"})
	assert.False(t, ok)

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 7)
	assert.Contains(t, v.Errors().Error(), "passphrase: is required")
}

func TestWriteValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, ValidationErrors{{Field: "entry", Message: "is required"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Code   string           `json:"code"`
		Errors ValidationErrors `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body.Code)
	assert.Equal(t, "entry", body.Errors[0].Field)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Entry string `json:"entry"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"entry":"https://x.example"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "https://x.example", dst.Entry)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"entry":"x","extra":1}`))
	assert.Error(t, DecodeJSON(req, &dst))
}

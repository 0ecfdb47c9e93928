package broker

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetActiveAddress(t *testing.T) {
	env := newTestEnv(t)

	resp := env.mustDispatch(t, `{"type":"get_active_address","sender":"api"}`)
	assert.False(t, resp.Res)
	assert.Equal(t, apperrors.MsgPermissionDenied, resp.Message)
	assert.Empty(t, resp.Address)

	env.grant(t, types.CapAccessAddress)

	resp = env.mustDispatch(t, `{"type":"get_active_address","sender":"api"}`)
	assert.True(t, resp.Res)
	assert.Equal(t, "get_active_address_result", resp.Type)
	assert.Equal(t, env.address, resp.Address)
	assert.Zero(t, env.approver.calls(), "reads never open the approval surface")
}

func TestGetActiveAddress_LookupFailure(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, types.CapAccessAddress)
	require.NoError(t, env.repos.Profile.SetActiveAddress(context.Background(), ""))

	resp := env.mustDispatch(t, `{"type":"get_active_address","sender":"api"}`)
	assert.False(t, resp.Res)
	assert.Equal(t, apperrors.MsgActiveAddressFailed, resp.Message)
}

func TestGetAllAddresses(t *testing.T) {
	env := newTestEnv(t)

	resp := env.mustDispatch(t, `{"type":"get_all_addresses","sender":"api"}`)
	assert.False(t, resp.Res)
	assert.Equal(t, apperrors.MsgPermissionDenied, resp.Message)

	env.grant(t, types.CapAccessAddress)
	resp = env.mustDispatch(t, `{"type":"get_all_addresses","sender":"api"}`)
	assert.False(t, resp.Res, "ACCESS_ADDRESS does not imply ACCESS_ALL_ADDRESSES")

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	second, err := env.vault.AddKeyfile(context.Background(),
		[]byte(fmt.Sprintf(`{"private_key":%q}`, hex.EncodeToString(ethcrypto.FromECDSA(key)))), testPassphrase)
	require.NoError(t, err)

	env.grant(t, types.CapAccessAllAddresses)
	resp = env.mustDispatch(t, `{"type":"get_all_addresses","sender":"api"}`)
	assert.True(t, resp.Res)
	assert.Equal(t, "get_all_addresses_result", resp.Type)
	assert.Equal(t, []string{env.address, second}, resp.Addresses)
}

func TestGetPermissions(t *testing.T) {
	env := newTestEnv(t)

	resp := env.mustDispatch(t, `{"type":"get_permissions","sender":"api"}`)
	assert.True(t, resp.Res)
	assert.Empty(t, resp.Permissions)

	env.grant(t, types.CapSignTransaction, types.CapAccessAddress)
	resp = env.mustDispatch(t, `{"type":"get_permissions","sender":"api"}`)
	assert.True(t, resp.Res)
	assert.Equal(t, []types.Capability{types.CapAccessAddress, types.CapSignTransaction}, resp.Permissions)

	other := types.Channel{ID: "tab-9", URL: "https://elsewhere.example"}
	resp, err := env.dispatch(t, other, `{"type":"get_permissions","sender":"api"}`)
	require.NoError(t, err)
	assert.Empty(t, resp.Permissions, "grants are per origin")
}

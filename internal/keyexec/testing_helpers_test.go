package keyexec

import (
	"encoding/hex"
	"fmt"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// newPlainKeyfile returns a fresh plaintext keyfile and its address
func newPlainKeyfile(t *testing.T) ([]byte, string) {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	raw := fmt.Sprintf(`{"address":%q,"private_key":%q}`, address, hex.EncodeToString(ethcrypto.FromECDSA(key)))
	return []byte(raw), address
}

package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Intrinsic gas of a plain transfer and per non-zero calldata byte
const (
	txBaseGas     = 21000
	txDataGasByte = 16
)

// gasPricer is the part of an EVM client the quoter needs
type gasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// EVMQuoter prices a transaction as gasPrice * (21000 + 16 * dataSize),
// an upper bound on intrinsic gas for the payload
type EVMQuoter struct {
	client gasPricer
	closer func()
}

// NewEVMQuoter dials rpcURL
func NewEVMQuoter(ctx context.Context, rpcURL string) (*EVMQuoter, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return &EVMQuoter{client: client, closer: client.Close}, nil
}

// Quote implements FeeQuoter
func (q *EVMQuoter) Quote(ctx context.Context, dataSize int, _ string) (*big.Int, error) {
	if dataSize < 0 {
		return nil, fmt.Errorf("data size cannot be negative")
	}

	gasPrice, err := q.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gas := new(big.Int).SetInt64(txBaseGas + txDataGasByte*int64(dataSize))
	return gas.Mul(gas, gasPrice), nil
}

// Close releases the RPC connection
func (q *EVMQuoter) Close() {
	if q.closer != nil {
		q.closer()
	}
}

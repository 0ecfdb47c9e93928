// Package ledger quotes network fees for transactions awaiting signature.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// FeeQuoter returns the network fee, in smallest units, for a transaction
// carrying dataSize bytes to target
type FeeQuoter interface {
	Quote(ctx context.Context, dataSize int, target string) (*big.Int, error)
}

// Denomination describes the unit amounts are expressed in
type Denomination struct {
	Symbol   string
	Decimals int
}

// Known denominations
var (
	// Winston-denominated gateway networks: 1 AR = 10^12 winston
	DenominationAR = Denomination{Symbol: "AR", Decimals: 12}
	// EVM networks: 1 ETH = 10^18 wei
	DenominationETH = Denomination{Symbol: "ETH", Decimals: 18}
)

// ParseAmount converts a decimal amount in whole units ("1", "0.25") to
// smallest units. Amounts finer than the smallest unit are rejected.
func (d Denomination) ParseAmount(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", amount)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("amount cannot be negative: %q", amount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, d.Decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// Format renders smallest units as a decimal amount in whole units
func (d Denomination) Format(units *big.Int) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Decimals)), nil)
	r := new(big.Rat).SetFrac(units, scale)
	s := r.FloatString(d.Decimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

package types

import (
	"encoding/base64"
	"fmt"
	"math/big"
)

// Tag is a name/value pair attached to a transaction
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Transaction is the ledger transaction submitted by a page for signing.
// Amounts are decimal strings in the network's smallest unit; Data is
// base64url without padding.
type Transaction struct {
	Format    int    `json:"format"`
	ID        string `json:"id,omitempty"`
	LastTx    string `json:"last_tx,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Tags      []Tag  `json:"tags,omitempty"`
	Target    string `json:"target,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
	Data      string `json:"data,omitempty"`
	DataSize  string `json:"data_size,omitempty"`
	Reward    string `json:"reward,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// SignatureOptions tune how a transaction is signed
type SignatureOptions struct {
	// Digest selects the hash fed to the signer: "keccak256" (default) or "sha256"
	Digest string `json:"digest,omitempty"`
}

// DataBytes decodes the transaction payload
func (t *Transaction) DataBytes() ([]byte, error) {
	if t.Data == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(t.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction data encoding: %w", err)
	}
	return b, nil
}

// QuantityAmount parses Quantity; an empty quantity is zero
func (t *Transaction) QuantityAmount() (*big.Int, error) {
	return parseUnits(t.Quantity, "quantity")
}

// RewardAmount parses Reward; an empty reward is zero
func (t *Transaction) RewardAmount() (*big.Int, error) {
	return parseUnits(t.Reward, "reward")
}

// AddTag appends a tag to the transaction
func (t *Transaction) AddTag(name, value string) {
	t.Tags = append(t.Tags, Tag{Name: name, Value: value})
}

// Clone returns a deep copy
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.Tags != nil {
		c.Tags = append([]Tag(nil), t.Tags...)
	}
	return &c
}

func parseUnits(s, field string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s cannot be negative", field)
	}
	return v, nil
}

// Package policy decides whether a signing request may be signed without
// asking the user.
package policy

import (
	"context"
	"fmt"
	"math/big"
)

// Decision represents the result of policy evaluation
type Decision int

const (
	// DecisionRequireApproval routes the request to the approval surface
	DecisionRequireApproval Decision = iota
	// DecisionAutoSign signs without asking
	DecisionAutoSign
)

func (d Decision) String() string {
	switch d {
	case DecisionAutoSign:
		return "auto_sign"
	case DecisionRequireApproval:
		return "require_approval"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Reasons reported in EvaluationResult
const (
	ReasonSessionLocked = "vault session is locked"
	ReasonAboveCeiling  = "fee plus quantity reaches the auto-approve ceiling"
	ReasonBelowCeiling  = "fee plus quantity is below the auto-approve ceiling"
)

// EvaluationContext contains the context for policy evaluation.
// Amounts are in the network's smallest unit.
type EvaluationContext struct {
	Fee             *big.Int
	Quantity        *big.Int
	SessionUnlocked bool
}

// EvaluationResult contains the result of policy evaluation
type EvaluationResult struct {
	Decision Decision
	Reason   string
	// Exposure is fee + quantity
	Exposure *big.Int
}

// Engine applies the auto-approve ceiling rule
type Engine struct {
	ceiling *big.Int
}

// NewEngine creates an Engine. A request whose fee plus quantity is equal
// to or above ceiling always requires approval.
func NewEngine(ceiling *big.Int) (*Engine, error) {
	if ceiling == nil || ceiling.Sign() < 0 {
		return nil, fmt.Errorf("auto-approve ceiling must be zero or positive")
	}
	return &Engine{ceiling: new(big.Int).Set(ceiling)}, nil
}

// Ceiling returns a copy of the configured ceiling
func (e *Engine) Ceiling() *big.Int {
	return new(big.Int).Set(e.ceiling)
}

// Evaluate decides between auto-signing and approval. A locked session
// always requires approval because only the approval reply can supply
// the decryption key.
func (e *Engine) Evaluate(_ context.Context, ec EvaluationContext) EvaluationResult {
	exposure := new(big.Int)
	if ec.Fee != nil {
		exposure.Add(exposure, ec.Fee)
	}
	if ec.Quantity != nil {
		exposure.Add(exposure, ec.Quantity)
	}

	switch {
	case !ec.SessionUnlocked:
		return EvaluationResult{Decision: DecisionRequireApproval, Reason: ReasonSessionLocked, Exposure: exposure}
	case exposure.Cmp(e.ceiling) >= 0:
		return EvaluationResult{Decision: DecisionRequireApproval, Reason: ReasonAboveCeiling, Exposure: exposure}
	default:
		return EvaluationResult{Decision: DecisionAutoSign, Reason: ReasonBelowCeiling, Exposure: exposure}
	}
}

package policy

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineEvaluate(t *testing.T) {
	// 1 AR in winston
	ceiling := big.NewInt(1_000_000_000_000)
	engine, err := NewEngine(ceiling)
	require.NoError(t, err)

	tests := []struct {
		name     string
		evalCtx  EvaluationContext
		expected Decision
		reason   string
	}{
		{
			name:     "small transfer with unlocked session",
			evalCtx:  EvaluationContext{Fee: big.NewInt(1000), Quantity: big.NewInt(5000), SessionUnlocked: true},
			expected: DecisionAutoSign,
			reason:   ReasonBelowCeiling,
		},
		{
			name:     "one unit below ceiling",
			evalCtx:  EvaluationContext{Fee: big.NewInt(1), Quantity: big.NewInt(999_999_999_998), SessionUnlocked: true},
			expected: DecisionAutoSign,
			reason:   ReasonBelowCeiling,
		},
		{
			name:     "exactly the ceiling",
			evalCtx:  EvaluationContext{Fee: big.NewInt(1), Quantity: big.NewInt(999_999_999_999), SessionUnlocked: true},
			expected: DecisionRequireApproval,
			reason:   ReasonAboveCeiling,
		},
		{
			name:     "fee alone above ceiling",
			evalCtx:  EvaluationContext{Fee: big.NewInt(2_000_000_000_000), SessionUnlocked: true},
			expected: DecisionRequireApproval,
			reason:   ReasonAboveCeiling,
		},
		{
			name:     "locked session with tiny amount",
			evalCtx:  EvaluationContext{Fee: big.NewInt(1), Quantity: big.NewInt(0), SessionUnlocked: false},
			expected: DecisionRequireApproval,
			reason:   ReasonSessionLocked,
		},
		{
			name:     "nil amounts count as zero",
			evalCtx:  EvaluationContext{SessionUnlocked: true},
			expected: DecisionAutoSign,
			reason:   ReasonBelowCeiling,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Evaluate(context.Background(), tt.evalCtx)
			assert.Equal(t, tt.expected, result.Decision, result.Reason)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestEngineEvaluate_Exposure(t *testing.T) {
	engine, err := NewEngine(big.NewInt(100))
	require.NoError(t, err)

	result := engine.Evaluate(context.Background(), EvaluationContext{Fee: big.NewInt(7), Quantity: big.NewInt(35), SessionUnlocked: true})
	assert.Equal(t, big.NewInt(42), result.Exposure)
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)

	_, err = NewEngine(big.NewInt(-1))
	assert.Error(t, err)

	engine, err := NewEngine(big.NewInt(0))
	require.NoError(t, err)
	// Zero ceiling: everything needs approval.
	result := engine.Evaluate(context.Background(), EvaluationContext{SessionUnlocked: true})
	assert.Equal(t, DecisionRequireApproval, result.Decision)

	c := big.NewInt(10)
	engine, err = NewEngine(c)
	require.NoError(t, err)
	c.SetInt64(0)
	assert.Equal(t, big.NewInt(10), engine.Ceiling())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "auto_sign", DecisionAutoSign.String())
	assert.Equal(t, "require_approval", DecisionRequireApproval.String())
}

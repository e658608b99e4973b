package receipts

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/arap/internal/money"
)

func TestEvaluateBoundaries(t *testing.T) {
	expected := money.MustParse("100.00")
	cases := []struct {
		name       string
		extracted  string
		confidence float64
		want       Decision
	}{
		{"exact match", "100.00", 0.95, DecisionAutoConfirm},
		{"49 cents over at threshold confidence", "100.49", 0.8, DecisionAutoConfirm},
		{"49 cents under", "99.51", 0.9, DecisionAutoConfirm},
		{"exactly 50 cents off", "100.50", 0.99, DecisionManualReview},
		{"51 cents off overrides confidence", "100.51", 0.95, DecisionManualReview},
		{"50 cents under", "99.50", 0.99, DecisionManualReview},
		{"confidence just below", "100.00", 0.7999, DecisionManualReview},
		{"zero confidence", "100.00", 0, DecisionManualReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Evaluate(money.MustParse(tc.extracted), tc.confidence, expected))
		})
	}
}

func TestEvaluateNaNConfidence(t *testing.T) {
	require.Equal(t, DecisionManualReview, Evaluate(100, math.NaN(), 100))
}

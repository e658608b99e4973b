// Package receipts decides whether an AI-read payment proof is trustworthy
// enough to settle a receivable without a human.
package receipts

import (
	"math"

	"github.com/odyssey-erp/arap/internal/money"
)

// Decision is the outcome of matching a receipt against the expected amount.
type Decision string

const (
	DecisionAutoConfirm  Decision = "AUTO_CONFIRM"
	DecisionManualReview Decision = "REQUIRES_MANUAL_REVIEW"
)

const (
	// MinConfidence is the lowest extraction confidence accepted for auto confirmation.
	MinConfidence = 0.80
	// Tolerance is the absolute amount difference that is still a match (exclusive).
	Tolerance money.Money = 50
)

// Evaluate auto-confirms only when confidence >= MinConfidence and the
// extracted amount differs from expected by less than Tolerance.
func Evaluate(extracted money.Money, confidence float64, expected money.Money) Decision {
	if math.IsNaN(confidence) || confidence < MinConfidence {
		return DecisionManualReview
	}
	if extracted.Sub(expected).Abs() >= Tolerance {
		return DecisionManualReview
	}
	return DecisionAutoConfirm
}

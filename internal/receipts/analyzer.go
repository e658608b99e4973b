package receipts

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/shared"
)

// MaxImageBytes bounds uploaded proofs.
const MaxImageBytes = 10 << 20

// Image is a payment proof payload.
type Image struct {
	Data     []byte
	MimeType string
}

// Extraction is the best-effort reading of a proof. Both fields may be absent.
type Extraction struct {
	Amount     *money.Money `json:"amount"`
	Confidence *float64     `json:"confidence"`
	Provider   string       `json:"provider"`
	Note       string       `json:"note,omitempty"`
}

// Analyzer reads the paid amount from a proof image. Implementations must
// honour ctx cancellation.
type Analyzer interface {
	Analyze(ctx context.Context, img Image) (Extraction, error)
	Provider() string
}

// AnalysisError wraps failures of an external analysis provider.
type AnalysisError struct {
	Provider string
	Op       string
	Err      error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Provider, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() []error {
	return []error{shared.ErrExternalService, e.Err}
}

func analysisError(provider, op string, err error) error {
	return &AnalysisError{Provider: provider, Op: op, Err: err}
}

// NoopAnalyzer never extracts anything; every proof goes to manual review.
type NoopAnalyzer struct{}

func (NoopAnalyzer) Analyze(ctx context.Context, img Image) (Extraction, error) {
	return Extraction{Provider: "none", Note: "automatic analysis disabled"}, nil
}

func (NoopAnalyzer) Provider() string { return "none" }

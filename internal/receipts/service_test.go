package receipts

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
	"github.com/odyssey-erp/arap/internal/shared"
)

var proof = Image{Data: []byte("\x89PNG\r\n\x1a\nfake"), MimeType: "image/png"}

func newTestService(analyzer Analyzer, settler Settler, metrics Metrics) *Service {
	return NewService(analyzer, settler, Config{
		Timeout: 50 * time.Millisecond,
		Metrics: metrics,
		Now:     func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) },
	})
}

func TestAssessReasons(t *testing.T) {
	expected := money.MustParse("100.00")
	nan := math.NaN()
	tooHigh := 1.4
	amount := money.MustParse("100.00")
	cases := []struct {
		name     string
		ext      Extraction
		err      error
		decision Decision
		reason   string
	}{
		{"matched", reading("100.49", 0.80), nil, DecisionAutoConfirm, ReasonMatched},
		{"low confidence", reading("100.00", 0.5), nil, DecisionManualReview, ReasonLowConfidence},
		{"mismatch", reading("100.51", 0.95), nil, DecisionManualReview, ReasonAmountMismatch},
		{"no amount", Extraction{Confidence: &tooHigh}, nil, DecisionManualReview, ReasonNoAmount},
		{"no confidence", Extraction{Amount: &amount}, nil, DecisionManualReview, ReasonNoConfidence},
		{"nan confidence", Extraction{Amount: &amount, Confidence: &nan}, nil, DecisionManualReview, ReasonInvalidConfidence},
		{"confidence out of range", Extraction{Amount: &amount, Confidence: &tooHigh}, nil, DecisionManualReview, ReasonInvalidConfidence},
		{"provider failure", Extraction{}, analysisError("stub", "analyze", errors.New("500")), DecisionManualReview, ReasonAnalysisFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &recordingMetrics{}
			svc := newTestService(&stubAnalyzer{ext: tc.ext, err: tc.err}, nil, metrics)
			got := svc.Assess(context.Background(), proof, expected)
			require.Equal(t, tc.decision, got.Decision)
			require.Equal(t, tc.reason, got.Reason)
			require.Equal(t, expected, got.Expected)
			require.Equal(t, []string{string(tc.decision) + "/" + tc.reason}, metrics.decisions)
			require.Equal(t, 1, metrics.analyses)
		})
	}
}

func TestAssessTimeoutDegradesToManualReview(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	analyzer := &stubAnalyzer{ext: reading("100.00", 0.99), block: release}
	svc := newTestService(analyzer, nil, nil)

	started := time.Now()
	got := svc.Assess(context.Background(), proof, money.MustParse("100.00"))
	require.Less(t, time.Since(started), 2*time.Second)
	require.Equal(t, DecisionManualReview, got.Decision)
	require.Equal(t, ReasonTimeout, got.Reason)
}

func TestAssessHonoursCallerDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	svc := NewService(&stubAnalyzer{block: release}, nil, Config{Timeout: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got := svc.Assess(ctx, proof, 100)
	require.Equal(t, ReasonTimeout, got.Reason)
}

func TestAttachProofAutoConfirms(t *testing.T) {
	o := pendingReceivable("250.00")
	settler := newFakeSettler(o)
	metrics := &recordingMetrics{}
	svc := newTestService(&stubAnalyzer{ext: reading("250.20", 0.91)}, settler, metrics)

	out, err := svc.AttachProof(context.Background(), ProofInput{ObligationID: o.ID, Image: proof, AccountID: 10})
	require.NoError(t, err)
	require.True(t, out.Confirmed)
	require.Equal(t, []string{string(DecisionAutoConfirm) + "/" + ReasonMatched}, metrics.decisions)
	require.Equal(t, obligations.StatusSettled, out.Obligation.Status)
	require.Equal(t, obligations.ConfirmedByAutomatedMatch, out.Obligation.ConfirmedBy)
	require.Len(t, settler.confirmed, 1)
	require.Equal(t, money.Zero, settler.confirmed[0].Adjustment)
	require.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), settler.confirmed[0].SettlementDate)
}

func TestAttachProofManualReviewLeavesPending(t *testing.T) {
	o := pendingReceivable("250.00")
	settler := newFakeSettler(o)
	svc := newTestService(&stubAnalyzer{ext: reading("200.00", 0.99)}, settler, nil)

	out, err := svc.AttachProof(context.Background(), ProofInput{ObligationID: o.ID, Image: proof, AccountID: 10})
	require.NoError(t, err)
	require.False(t, out.Confirmed)
	require.Equal(t, ReasonAmountMismatch, out.Assessment.Reason)
	require.Equal(t, obligations.StatusPending, out.Obligation.Status)
	require.Empty(t, settler.confirmed)
}

func TestAttachProofWithoutAccountNeedsReview(t *testing.T) {
	o := pendingReceivable("80.00")
	settler := newFakeSettler(o)
	metrics := &recordingMetrics{}
	svc := newTestService(&stubAnalyzer{ext: reading("80.00", 0.99)}, settler, metrics)

	out, err := svc.AttachProof(context.Background(), ProofInput{ObligationID: o.ID, Image: proof})
	require.NoError(t, err)
	require.Equal(t, DecisionManualReview, out.Assessment.Decision)
	require.Equal(t, ReasonNoAccount, out.Assessment.Reason)
	require.Empty(t, settler.confirmed)
	require.Equal(t, []string{string(DecisionManualReview) + "/" + ReasonNoAccount}, metrics.decisions)
}

func TestAttachProofRejections(t *testing.T) {
	settled := pendingReceivable("10.00")
	settled.Status = obligations.StatusSettled
	payable := pendingReceivable("10.00")
	payable.Direction = obligations.DirectionPayable
	settler := newFakeSettler(settled, payable)
	svc := newTestService(&stubAnalyzer{ext: reading("10.00", 0.99)}, settler, nil)
	ctx := context.Background()

	_, err := svc.AttachProof(ctx, ProofInput{ObligationID: settled.ID, Image: proof, AccountID: 1})
	require.ErrorIs(t, err, obligations.ErrAlreadySettled)

	_, err = svc.AttachProof(ctx, ProofInput{ObligationID: payable.ID, Image: proof, AccountID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AttachProof(ctx, ProofInput{ObligationID: settled.ID, AccountID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AttachProof(ctx, ProofInput{ObligationID: pendingReceivable("1.00").ID, Image: proof, AccountID: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAttachProofReportsSaleLinkFailure(t *testing.T) {
	o := pendingReceivable("99.90")
	settler := newFakeSettler(o)
	settler.linkErr = &obligations.SaleLinkError{SaleID: o.OriginID, Err: errors.New("db down"), Retryable: true}
	svc := newTestService(&stubAnalyzer{ext: reading("99.90", 0.85)}, settler, nil)

	out, err := svc.AttachProof(context.Background(), ProofInput{ObligationID: o.ID, Image: proof, AccountID: 3})
	var linkErr *obligations.SaleLinkError
	require.ErrorAs(t, err, &linkErr)
	require.True(t, out.Confirmed)
	require.Equal(t, obligations.StatusSettled, out.Obligation.Status)
}

package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
)

// Reasons reported with every assessment.
const (
	ReasonMatched           = "matched"
	ReasonTimeout           = "timeout"
	ReasonAnalysisFailed    = "analysis_failed"
	ReasonNoAmount          = "no_amount"
	ReasonNoConfidence      = "no_confidence"
	ReasonInvalidConfidence = "invalid_confidence"
	ReasonLowConfidence     = "low_confidence"
	ReasonAmountMismatch    = "amount_mismatch"
	ReasonNoAccount         = "no_account"
)

// DefaultTimeout bounds a single analysis call.
const DefaultTimeout = 20 * time.Second

// Metrics receives decision and latency observations.
type Metrics interface {
	ObserveDecision(decision, reason string)
	ObserveAnalysis(provider string, elapsed time.Duration)
}

// Settler is the part of the reconciliation service used to auto-confirm.
type Settler interface {
	Get(ctx context.Context, id uuid.UUID) (obligations.Obligation, error)
	ConfirmReceipt(ctx context.Context, id uuid.UUID, input obligations.ConfirmInput) (obligations.Obligation, error)
}

// Config tunes Service.
type Config struct {
	Timeout time.Duration
	Metrics Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service analyses payment proofs and applies the match rule.
type Service struct {
	analyzer Analyzer
	settler  Settler
	timeout  time.Duration
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a Service. settler may be nil when only Assess is used.
func NewService(analyzer Analyzer, settler Settler, cfg Config) *Service {
	if analyzer == nil {
		analyzer = NoopAnalyzer{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		analyzer: analyzer,
		settler:  settler,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Assessment is the decision for one proof.
type Assessment struct {
	Decision   Decision    `json:"decision"`
	Reason     string      `json:"reason"`
	Expected   money.Money `json:"expected"`
	Extraction Extraction  `json:"extraction"`
}

type analysisResult struct {
	ext Extraction
	err error
}

// Assess never fails: provider errors, timeouts and incomplete readings all
// yield DecisionManualReview.
func (s *Service) Assess(ctx context.Context, img Image, expected money.Money) Assessment {
	a := s.assess(ctx, img, expected)
	s.observeDecision(a)
	return a
}

func (s *Service) observeDecision(a Assessment) {
	if s.metrics != nil {
		s.metrics.ObserveDecision(string(a.Decision), a.Reason)
	}
}

func (s *Service) assess(ctx context.Context, img Image, expected money.Money) Assessment {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	done := make(chan analysisResult, 1)
	go func() {
		ext, err := s.analyzer.Analyze(ctx, img)
		done <- analysisResult{ext: ext, err: err}
	}()

	var res analysisResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = analysisResult{err: ctx.Err()}
	}
	if s.metrics != nil {
		s.metrics.ObserveAnalysis(s.analyzer.Provider(), time.Since(started))
	}

	a := Assessment{Decision: DecisionManualReview, Expected: expected, Extraction: res.ext}
	if a.Extraction.Provider == "" {
		a.Extraction.Provider = s.analyzer.Provider()
	}
	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		a.Reason = ReasonTimeout
	case res.err != nil:
		a.Reason = ReasonAnalysisFailed
	case res.ext.Amount == nil:
		a.Reason = ReasonNoAmount
	case res.ext.Confidence == nil:
		a.Reason = ReasonNoConfidence
	case math.IsNaN(*res.ext.Confidence) || *res.ext.Confidence < 0 || *res.ext.Confidence > 1:
		a.Reason = ReasonInvalidConfidence
	default:
		a.Decision = Evaluate(*res.ext.Amount, *res.ext.Confidence, expected)
		switch {
		case a.Decision == DecisionAutoConfirm:
			a.Reason = ReasonMatched
		case *res.ext.Confidence < MinConfidence:
			a.Reason = ReasonLowConfidence
		default:
			a.Reason = ReasonAmountMismatch
		}
	}
	if res.err != nil {
		s.logger.Warn("receipt analysis degraded to manual review",
			slog.String("provider", a.Extraction.Provider),
			slog.String("reason", a.Reason),
			slog.Any("error", res.err))
	}
	return a
}

// ProofInput attaches a proof to a pending receivable.
type ProofInput struct {
	ObligationID uuid.UUID
	Image        Image
	// AccountID is the receiving account used when the proof auto-confirms.
	AccountID  int64
	ReceivedAt time.Time
}

// ProofOutcome reports what happened to the receivable.
type ProofOutcome struct {
	Assessment Assessment             `json:"assessment"`
	Obligation obligations.Obligation `json:"obligation"`
	Confirmed  bool                   `json:"confirmed"`
}

// AttachProof assesses a proof against the receivable's original amount and
// confirms it as an automated match when the rule allows. A failed sale
// finalization is returned as *obligations.SaleLinkError alongside a
// confirmed outcome.
func (s *Service) AttachProof(ctx context.Context, in ProofInput) (ProofOutcome, error) {
	if s.settler == nil {
		return ProofOutcome{}, errors.New("receipts: no settler configured")
	}
	if len(in.Image.Data) == 0 {
		return ProofOutcome{}, &obligations.FieldError{Field: "receipt", Message: "is empty"}
	}
	if len(in.Image.Data) > MaxImageBytes {
		return ProofOutcome{}, &obligations.FieldError{Field: "receipt", Message: "is too large"}
	}
	current, err := s.settler.Get(ctx, in.ObligationID)
	if err != nil {
		return ProofOutcome{}, err
	}
	if current.Direction != obligations.DirectionReceivable {
		return ProofOutcome{}, fmt.Errorf("%s %s: %w", current.Direction, current.ID, obligations.ErrWrongDirection)
	}
	if current.Status == obligations.StatusSettled {
		return ProofOutcome{}, obligations.ErrAlreadySettled
	}

	assessment := s.assess(ctx, in.Image, current.OriginalAmount)
	out := ProofOutcome{Assessment: assessment, Obligation: current}
	if assessment.Decision == DecisionAutoConfirm && in.AccountID <= 0 {
		out.Assessment.Decision = DecisionManualReview
		out.Assessment.Reason = ReasonNoAccount
	}
	s.observeDecision(out.Assessment)
	if out.Assessment.Decision != DecisionAutoConfirm {
		return out, nil
	}

	received := in.ReceivedAt
	if received.IsZero() {
		received = s.now()
	}
	settled, err := s.settler.ConfirmReceipt(ctx, in.ObligationID, obligations.ConfirmInput{
		AccountID:      in.AccountID,
		SettlementDate: received,
		ConfirmedBy:    obligations.ConfirmedByAutomatedMatch,
	})
	var linkErr *obligations.SaleLinkError
	if err != nil && !errors.As(err, &linkErr) {
		return out, err
	}
	out.Obligation = settled
	out.Confirmed = true
	s.logger.Info("receivable auto-confirmed from proof",
		slog.String("obligation_id", settled.ID.String()),
		slog.String("amount", settled.FinalAmount().String()))
	return out, err
}

package receipts

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
)

type stubAnalyzer struct {
	ext   Extraction
	err   error
	block chan struct{}
	calls atomic.Int32
}

func (a *stubAnalyzer) Provider() string { return "stub" }

func (a *stubAnalyzer) Analyze(ctx context.Context, img Image) (Extraction, error) {
	a.calls.Add(1)
	if a.block != nil {
		<-a.block
	}
	return a.ext, a.err
}

func reading(amount string, confidence float64) Extraction {
	m := money.MustParse(amount)
	return Extraction{Amount: &m, Confidence: &confidence, Provider: "stub"}
}

type fakeSettler struct {
	mu        sync.Mutex
	items     map[uuid.UUID]obligations.Obligation
	confirmed []obligations.ConfirmInput
	linkErr   error
}

func newFakeSettler(items ...obligations.Obligation) *fakeSettler {
	s := &fakeSettler{items: map[uuid.UUID]obligations.Obligation{}}
	for _, o := range items {
		s.items[o.ID] = o
	}
	return s
}

func (s *fakeSettler) Get(ctx context.Context, id uuid.UUID) (obligations.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.items[id]
	if !ok {
		return obligations.Obligation{}, obligations.ErrObligationNotFound
	}
	return o, nil
}

func (s *fakeSettler) ConfirmReceipt(ctx context.Context, id uuid.UUID, in obligations.ConfirmInput) (obligations.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.items[id]
	if !ok {
		return obligations.Obligation{}, obligations.ErrObligationNotFound
	}
	if o.Status == obligations.StatusSettled {
		return obligations.Obligation{}, obligations.ErrAlreadySettled
	}
	account := in.AccountID
	date := in.SettlementDate
	o.Status = obligations.StatusSettled
	o.SettlementAccountID = &account
	o.SettlementDate = &date
	o.ConfirmedBy = in.ConfirmedBy
	o.Version++
	s.items[id] = o
	s.confirmed = append(s.confirmed, in)
	return o, s.linkErr
}

func pendingReceivable(amount string) obligations.Obligation {
	return obligations.Obligation{
		ID:                uuid.New(),
		Direction:         obligations.DirectionReceivable,
		OriginID:          42,
		GroupID:           uuid.New(),
		InstallmentNumber: 1,
		TotalInstallments: 1,
		OriginalAmount:    money.MustParse(amount),
		Status:            obligations.StatusPending,
		Version:           1,
		CreatedAt:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

type recordingMetrics struct {
	mu        sync.Mutex
	decisions []string
	analyses  int
}

func (m *recordingMetrics) ObserveDecision(decision, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, decision+"/"+reason)
}

func (m *recordingMetrics) ObserveAnalysis(provider string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses++
}

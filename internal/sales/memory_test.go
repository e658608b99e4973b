package sales

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
	"github.com/odyssey-erp/arap/internal/receipts"
	"github.com/odyssey-erp/arap/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]Sale
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]Sale{}}
}

func (r *memoryRepo) Create(ctx context.Context, sale Sale) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sale.ID = r.nextID
	sale.Status = StatusPending
	sale.CreatedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sale.UpdatedAt = sale.CreatedAt
	r.items[sale.ID] = sale
	return sale, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return s, nil
}

func (r *memoryRepo) Finalize(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	switch {
	case !ok:
		return ErrSaleNotFound
	case s.Status == StatusCancelled:
		return ErrSaleCancelled
	}
	s.Status = StatusFinalized
	r.items[id] = s
	return nil
}

func (r *memoryRepo) Cancel(ctx context.Context, id int64, note string) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	switch {
	case !ok:
		return Sale{}, ErrSaleNotFound
	case s.Status == StatusCancelled:
		return Sale{}, ErrSaleCancelled
	}
	s.Status = StatusCancelled
	if s.Notes == "" {
		s.Notes = note
	} else {
		s.Notes += "\n" + note
	}
	r.items[id] = s
	return s, nil
}

type fakeReceivables struct {
	mu        sync.Mutex
	bySale    map[int64]obligations.Obligation
	notes     map[int64][]string
	createErr error
}

func newFakeReceivables() *fakeReceivables {
	return &fakeReceivables{bySale: map[int64]obligations.Obligation{}, notes: map[int64][]string{}}
}

func (f *fakeReceivables) CreateReceivableForSale(ctx context.Context, saleID int64, amount money.Money) (obligations.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return obligations.Obligation{}, f.createErr
	}
	if _, ok := f.bySale[saleID]; ok {
		return obligations.Obligation{}, obligations.ErrReceivableExists
	}
	o := obligations.Obligation{
		ID:                uuid.New(),
		Direction:         obligations.DirectionReceivable,
		OriginID:          saleID,
		GroupID:           uuid.New(),
		InstallmentNumber: 1,
		TotalInstallments: 1,
		OriginalAmount:    amount,
		Status:            obligations.StatusPending,
		Version:           1,
	}
	f.bySale[saleID] = o
	return o, nil
}

func (f *fakeReceivables) AppendSaleCancellationNote(ctx context.Context, saleID int64, reason string) (obligations.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.bySale[saleID]
	if !ok {
		return obligations.Obligation{}, obligations.ErrObligationNotFound
	}
	f.notes[saleID] = append(f.notes[saleID], reason)
	return o, nil
}

func (f *fakeReceivables) settle(id uuid.UUID) (obligations.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for saleID, o := range f.bySale {
		if o.ID == id {
			o.Status = obligations.StatusSettled
			o.ConfirmedBy = obligations.ConfirmedByAutomatedMatch
			f.bySale[saleID] = o
			return o, nil
		}
	}
	return obligations.Obligation{}, obligations.ErrObligationNotFound
}

// fakeProofs settles through the gateway the way the reconciliation service does.
type fakeProofs struct {
	gateway     *Gateway
	receivables *fakeReceivables
	decision receipts.Decision
	err      error
	inputs   []receipts.ProofInput
}

func (f *fakeProofs) AttachProof(ctx context.Context, in receipts.ProofInput) (receipts.ProofOutcome, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return receipts.ProofOutcome{}, f.err
	}
	out := receipts.ProofOutcome{Assessment: receipts.Assessment{Decision: f.decision}}
	if f.decision != receipts.DecisionAutoConfirm {
		return out, nil
	}
	o, err := f.receivables.settle(in.ObligationID)
	if err != nil {
		return out, err
	}
	out.Confirmed = true
	out.Obligation = o
	if err := f.gateway.MarkFinalized(ctx, o.OriginID); err != nil {
		return out, &obligations.SaleLinkError{SaleID: o.OriginID, Err: err}
	}
	return out, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

var errBoom = errors.New("boom")

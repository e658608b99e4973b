package obligations

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/accounts"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Obligation
	clock func() time.Time

	// beforeUpdate runs between the caller's read and the compare-and-swap.
	beforeUpdate func(id uuid.UUID)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items: make(map[uuid.UUID]Obligation),
		clock: func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Create(ctx context.Context, o Obligation) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.Direction == DirectionReceivable {
		for _, existing := range r.items {
			if existing.Direction == DirectionReceivable && existing.OriginID == o.OriginID {
				return uuid.Nil, ErrReceivableExists
			}
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.Status = StatusPending
	o.Version = 1
	o.CreatedAt = r.clock()
	o.UpdatedAt = o.CreatedAt
	r.items[o.ID] = o
	return o.ID, nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Obligation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.items[id]
	if !ok {
		return Obligation{}, ErrObligationNotFound
	}
	return o, nil
}

func (r *memoryRepo) Query(ctx context.Context, filter Filter) ([]Obligation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Obligation
	for _, o := range r.items {
		if filter.Matches(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID.String() < out[j].GroupID.String()
		}
		return out[i].InstallmentNumber < out[j].InstallmentNumber
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) Update(ctx context.Context, id uuid.UUID, patch Patch) (Obligation, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.items[id]
	if !ok {
		return Obligation{}, ErrObligationNotFound
	}
	if o.Status != patch.ExpectStatus || o.Version != patch.ExpectVersion {
		return Obligation{}, ErrStaleObligation
	}
	o = patch.apply(o, r.clock())
	r.items[id] = o
	return o, nil
}

func (r *memoryRepo) AppendNote(ctx context.Context, id uuid.UUID, note string) (Obligation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.items[id]
	if !ok {
		return Obligation{}, ErrObligationNotFound
	}
	if o.Notes == "" {
		o.Notes = note
	} else {
		o.Notes = strings.Join([]string{o.Notes, note}, "\n")
	}
	o.Version++
	r.items[id] = o
	return o, nil
}

type fakeSales struct {
	mu        sync.Mutex
	sales     map[int64]SaleRef
	finalized []int64
	failMark  error
}

func newFakeSales(ids ...int64) *fakeSales {
	f := &fakeSales{sales: make(map[int64]SaleRef)}
	for _, id := range ids {
		f.sales[id] = SaleRef{ID: id, Total: money.MustParse("100.00"), Status: "PENDING"}
	}
	return f
}

func (f *fakeSales) GetSale(ctx context.Context, saleID int64) (SaleRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sales[saleID]
	if !ok {
		return SaleRef{}, shared.ErrNotFound
	}
	return s, nil
}

func (f *fakeSales) MarkFinalized(ctx context.Context, saleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMark != nil {
		return f.failMark
	}
	s := f.sales[saleID]
	s.Status = "FINALIZED"
	f.sales[saleID] = s
	f.finalized = append(f.finalized, saleID)
	return nil
}

func (f *fakeSales) status(saleID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sales[saleID].Status
}

type fakeAccounts map[int64]accounts.Account

func (f fakeAccounts) ActiveAccount(ctx context.Context, id int64) (accounts.Account, error) {
	a, ok := f[id]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	if !a.IsActive {
		return accounts.Account{}, accounts.ErrAccountInactive
	}
	return a, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveSettlement(direction, action, confirmedBy string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[direction+"/"+action+"/"+confirmedBy]++
}

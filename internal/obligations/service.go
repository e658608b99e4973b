package obligations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/accounts"
	"github.com/odyssey-erp/arap/internal/installments"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/shared"
)

// MaxInstallments bounds a single payable submission.
const MaxInstallments = 360

// SaleRef is the slice of a sale the engine reads.
type SaleRef struct {
	ID     int64
	Total  money.Money
	Status string
}

// SaleLink reads and finalizes the sale behind a receivable. It never moves a
// sale toward cancelled.
type SaleLink interface {
	GetSale(ctx context.Context, saleID int64) (SaleRef, error)
	MarkFinalized(ctx context.Context, saleID int64) error
}

// AccountLookup resolves settlement accounts that accept money.
type AccountLookup interface {
	ActiveAccount(ctx context.Context, id int64) (accounts.Account, error)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SettlementMetrics counts state transitions.
type SettlementMetrics interface {
	ObserveSettlement(direction, action, confirmedBy string)
}

// ServiceConfig carries optional collaborators and tunables.
type ServiceConfig struct {
	// ReceivableOverdueAfter is how long a receivable may stay pending after
	// creation before Overdue reports it.
	ReceivableOverdueAfter time.Duration
	Metrics                SettlementMetrics
	Logger                 *slog.Logger
	Now                    func() time.Time
}

// Service is the only mutation path for obligations.
type Service struct {
	repo     Repository
	sales    SaleLink
	accounts AccountLookup
	audit    AuditRecorder
	metrics  SettlementMetrics
	logger   *slog.Logger
	now      func() time.Time

	receivableOverdueAfter time.Duration
}

func NewService(repo Repository, sales SaleLink, accountLookup AccountLookup, audit AuditRecorder, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ReceivableOverdueAfter <= 0 {
		cfg.ReceivableOverdueAfter = 30 * 24 * time.Hour
	}
	return &Service{
		repo:                   repo,
		sales:                  sales,
		accounts:               accountLookup,
		audit:                  audit,
		metrics:                cfg.Metrics,
		logger:                 cfg.Logger,
		now:                    cfg.Now,
		receivableOverdueAfter: cfg.ReceivableOverdueAfter,
	}
}

// CreateReceivableForSale opens the single receivable of a sale.
func (s *Service) CreateReceivableForSale(ctx context.Context, saleID int64, amount money.Money) (Obligation, error) {
	if saleID <= 0 {
		return Obligation{}, invalid("sale_id", "must be positive")
	}
	if !amount.IsPositive() {
		return Obligation{}, invalid("amount", "must be greater than zero")
	}
	if s.sales != nil {
		if _, err := s.sales.GetSale(ctx, saleID); err != nil {
			return Obligation{}, err
		}
	}

	var created Obligation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.Query(ctx, Filter{Direction: DirectionReceivable, OriginID: saleID, Limit: 1})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrReceivableExists
		}
		id, err := tx.Create(ctx, Obligation{
			ID:                uuid.New(),
			Direction:         DirectionReceivable,
			OriginID:          saleID,
			GroupID:           uuid.New(),
			InstallmentNumber: 1,
			TotalInstallments: 1,
			OriginalAmount:    amount,
			Status:            StatusPending,
		})
		if err != nil {
			return err
		}
		created, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return Obligation{}, err
	}

	s.record(ctx, "obligation.receivable.create", created, map[string]any{"sale_id": saleID, "amount": amount.String()})
	return created, nil
}

// PayableGroupInput describes one payable submission.
type PayableGroupInput struct {
	SupplierID   int64
	Total        money.Money
	Count        int
	FirstDueDate time.Time
	DaysBetween  int
	Description  string
}

// CreatePayableGroup splits the total into installments sharing one group id.
func (s *Service) CreatePayableGroup(ctx context.Context, input PayableGroupInput) ([]Obligation, error) {
	switch {
	case input.SupplierID <= 0:
		return nil, invalid("supplier_id", "must be positive")
	case !input.Total.IsPositive():
		return nil, invalid("total", "must be greater than zero")
	case input.Count < 1:
		return nil, invalid("count", "must be at least 1")
	case input.Count > MaxInstallments:
		return nil, invalid("count", fmt.Sprintf("must not exceed %d", MaxInstallments))
	case input.FirstDueDate.IsZero():
		return nil, invalid("first_due_date", "is required")
	}

	plan := installments.Split(input.Total, input.Count, dateOnly(input.FirstDueDate), input.DaysBetween)
	if len(plan) == 0 {
		return nil, invalid("total", "nothing to split")
	}
	groupID := uuid.New()
	description := strings.TrimSpace(input.Description)

	var created []Obligation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, inst := range plan {
			due := inst.DueDate
			desc := description
			if desc != "" && inst.Total > 1 {
				desc = fmt.Sprintf("%s (%d/%d)", desc, inst.Number, inst.Total)
			}
			if _, err := tx.Create(ctx, Obligation{
				ID:                uuid.New(),
				Direction:         DirectionPayable,
				OriginID:          input.SupplierID,
				GroupID:           groupID,
				InstallmentNumber: inst.Number,
				TotalInstallments: inst.Total,
				Description:       desc,
				OriginalAmount:    inst.Amount,
				DueDate:           &due,
				Status:            StatusPending,
			}); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.Query(ctx, Filter{GroupID: groupID})
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, o := range created {
		s.record(ctx, "obligation.payable.create", o, map[string]any{
			"supplier_id": input.SupplierID,
			"installment": fmt.Sprintf("%d/%d", o.InstallmentNumber, o.TotalInstallments),
			"amount":      o.OriginalAmount.String(),
		})
	}
	s.logger.Info("payable group created",
		slog.String("group_id", groupID.String()),
		slog.Int64("supplier_id", input.SupplierID),
		slog.Int("installments", len(created)),
		slog.String("total", input.Total.String()))
	return created, nil
}

// ConfirmInput carries the settlement fields of a confirmation.
type ConfirmInput struct {
	AccountID      int64
	Adjustment     money.Money
	SettlementDate time.Time
	// ConfirmedBy defaults to ConfirmedByManual.
	ConfirmedBy ConfirmedBy
}

// ConfirmPayment settles a pending payable.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, input ConfirmInput) (Obligation, error) {
	return s.settle(ctx, id, DirectionPayable, input)
}

// ConfirmReceipt settles a pending receivable and then finalizes its sale. A
// failed sale update returns the settled obligation together with a
// *SaleLinkError.
func (s *Service) ConfirmReceipt(ctx context.Context, id uuid.UUID, input ConfirmInput) (Obligation, error) {
	settled, err := s.settle(ctx, id, DirectionReceivable, input)
	if err != nil {
		return Obligation{}, err
	}
	if s.sales == nil {
		return settled, nil
	}
	if err := s.sales.MarkFinalized(ctx, settled.OriginID); err != nil {
		s.logger.Warn("finalize sale after receipt",
			slog.Int64("sale_id", settled.OriginID),
			slog.String("obligation_id", settled.ID.String()),
			slog.Any("error", err))
		return settled, wrapSaleLinkError(settled.OriginID, err)
	}
	return settled, nil
}

// CancelPayment reopens a settled payable. Adjustment is kept.
func (s *Service) CancelPayment(ctx context.Context, id uuid.UUID, reason string) (Obligation, error) {
	return s.reopen(ctx, id, DirectionPayable, reason)
}

// CancelReceipt reopens a settled receivable. The sale is left untouched.
func (s *Service) CancelReceipt(ctx context.Context, id uuid.UUID, reason string) (Obligation, error) {
	return s.reopen(ctx, id, DirectionReceivable, reason)
}

func (s *Service) settle(ctx context.Context, id uuid.UUID, direction Direction, input ConfirmInput) (Obligation, error) {
	if input.AccountID <= 0 {
		return Obligation{}, invalid("settlement_account_id", "is required")
	}
	if input.SettlementDate.IsZero() {
		return Obligation{}, invalid("settlement_date", "is required")
	}
	by := input.ConfirmedBy
	if by == ConfirmedByNone {
		by = ConfirmedByManual
	}
	if by != ConfirmedByManual && by != ConfirmedByAutomatedMatch {
		return Obligation{}, invalid("confirmed_by", "unknown confirmer")
	}
	if s.accounts != nil {
		if _, err := s.accounts.ActiveAccount(ctx, input.AccountID); err != nil {
			return Obligation{}, err
		}
	}

	var settled Obligation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Direction != direction {
			return fmt.Errorf("%s %s: %w", current.Direction, current.ID, ErrWrongDirection)
		}
		if current.Status == StatusSettled {
			return ErrAlreadySettled
		}
		if current.OriginalAmount.Add(input.Adjustment) < 0 {
			return invalid("adjustment", "would make the final amount negative")
		}
		settled, err = tx.Update(ctx, id, settlePatch(current, input.AccountID, input.Adjustment, input.SettlementDate, by))
		return err
	})
	if errors.Is(err, ErrStaleObligation) {
		err = s.resolveConflict(ctx, id, StatusSettled)
	}
	if err != nil {
		return Obligation{}, err
	}

	s.observe(settled, "confirm")
	s.record(ctx, "obligation.confirm", settled, map[string]any{
		"account_id":   input.AccountID,
		"adjustment":   input.Adjustment.String(),
		"final_amount": settled.FinalAmount().String(),
		"confirmed_by": string(by),
	})
	s.logger.Info("obligation settled",
		slog.String("obligation_id", settled.ID.String()),
		slog.String("direction", string(settled.Direction)),
		slog.String("confirmed_by", string(by)),
		slog.String("final_amount", settled.FinalAmount().String()))
	return settled, nil
}

func (s *Service) reopen(ctx context.Context, id uuid.UUID, direction Direction, reason string) (Obligation, error) {
	reason = strings.TrimSpace(reason)
	var reopened Obligation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Direction != direction {
			return fmt.Errorf("%s %s: %w", current.Direction, current.ID, ErrWrongDirection)
		}
		if current.Status != StatusSettled {
			return ErrNotSettled
		}
		previousBy := current.ConfirmedBy
		reopened, err = tx.Update(ctx, id, reopenPatch(current))
		if err != nil {
			return err
		}
		if reason != "" {
			note := fmt.Sprintf("%s settlement cancelled (%s): %s", s.now().UTC().Format(time.DateOnly), strings.ToLower(string(previousBy)), reason)
			reopened, err = tx.AppendNote(ctx, id, note)
		}
		return err
	})
	if errors.Is(err, ErrStaleObligation) {
		err = s.resolveConflict(ctx, id, StatusPending)
	}
	if err != nil {
		return Obligation{}, err
	}

	s.observe(reopened, "cancel")
	s.record(ctx, "obligation.cancel", reopened, map[string]any{"reason": reason})
	s.logger.Info("obligation reopened",
		slog.String("obligation_id", reopened.ID.String()),
		slog.String("direction", string(reopened.Direction)))
	return reopened, nil
}

// resolveConflict turns a lost compare-and-swap into the error the caller
// should see: if the record already reached target another caller won the
// same transition.
func (s *Service) resolveConflict(ctx context.Context, id uuid.UUID, target Status) error {
	latest, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if latest.Status == target {
		if target == StatusSettled {
			return ErrAlreadySettled
		}
		return ErrNotSettled
	}
	return ErrStaleObligation
}

// AppendSaleCancellationNote records the mandatory reason of a sale
// cancellation on the sale's receivable.
func (s *Service) AppendSaleCancellationNote(ctx context.Context, saleID int64, reason string) (Obligation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Obligation{}, invalid("reason", "is required to cancel a sale")
	}
	var annotated Obligation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.Query(ctx, Filter{Direction: DirectionReceivable, OriginID: saleID, Limit: 1})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return ErrObligationNotFound
		}
		note := fmt.Sprintf("%s sale cancelled: %s", s.now().UTC().Format(time.DateOnly), reason)
		annotated, err = tx.AppendNote(ctx, found[0].ID, note)
		return err
	})
	if err != nil {
		return Obligation{}, err
	}
	s.record(ctx, "obligation.sale_cancelled_note", annotated, map[string]any{"sale_id": saleID, "reason": reason})
	return annotated, nil
}

// Get returns one obligation.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Obligation, error) {
	return s.repo.Get(ctx, id)
}

// List returns obligations matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Obligation, error) {
	if filter.Direction != "" && !filter.Direction.IsValid() {
		return nil, invalid("direction", "unknown direction")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, invalid("status", "unknown status")
	}
	return s.repo.Query(ctx, filter)
}

// Group returns the installments of one group ordered by number.
func (s *Service) Group(ctx context.Context, groupID uuid.UUID) ([]Obligation, error) {
	if groupID == uuid.Nil {
		return nil, invalid("group_id", "is required")
	}
	items, err := s.repo.Query(ctx, Filter{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, shared.ErrNotFound)
	}
	return items, nil
}

// OverdueReport lists pending obligations past their deadline.
type OverdueReport struct {
	AsOf        time.Time    `json:"as_of"`
	Payables    []Obligation `json:"payables"`
	Receivables []Obligation `json:"receivables"`
}

// Overdue reports pending payables due before asOf and pending receivables
// created more than the configured window before asOf. Receivables carry no
// due date, so their creation time stands in for one.
func (s *Service) Overdue(ctx context.Context, asOf time.Time) (OverdueReport, error) {
	day := dateOnly(asOf)
	payables, err := s.repo.Query(ctx, Filter{Direction: DirectionPayable, Status: StatusPending, DueTo: &day})
	if err != nil {
		return OverdueReport{}, err
	}
	cutoff := asOf.Add(-s.receivableOverdueAfter)
	receivables, err := s.repo.Query(ctx, Filter{Direction: DirectionReceivable, Status: StatusPending, CreatedBefore: &cutoff})
	if err != nil {
		return OverdueReport{}, err
	}
	return OverdueReport{AsOf: asOf, Payables: payables, Receivables: receivables}, nil
}

func (s *Service) observe(o Obligation, action string) {
	if s.metrics == nil {
		return
	}
	by := string(o.ConfirmedBy)
	if by == "" {
		by = "none"
	}
	s.metrics.ObserveSettlement(string(o.Direction), action, by)
}

func (s *Service) record(ctx context.Context, action string, o Obligation, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["direction"] = string(o.Direction)
	meta["status"] = string(o.Status)
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "obligation",
		EntityID: o.ID.String(),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

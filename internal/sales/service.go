package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
	"github.com/odyssey-erp/arap/internal/receipts"
	"github.com/odyssey-erp/arap/internal/shared"
)

// Receivables is the part of the reconciliation service a sale drives.
type Receivables interface {
	CreateReceivableForSale(ctx context.Context, saleID int64, amount money.Money) (obligations.Obligation, error)
	AppendSaleCancellationNote(ctx context.Context, saleID int64, reason string) (obligations.Obligation, error)
}

// ProofAttacher assesses a payment proof for a receivable.
type ProofAttacher interface {
	AttachProof(ctx context.Context, in receipts.ProofInput) (receipts.ProofOutcome, error)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the sale workflows.
type Service struct {
	repo        Repository
	receivables Receivables
	proofs      ProofAttacher
	audit       AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a sales service. proofs and audit may be nil.
func NewService(repo Repository, receivables Receivables, proofs ProofAttacher, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		receivables: receivables,
		proofs:      proofs,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateSaleInput describes a new sale and an optional payment proof.
type CreateSaleInput struct {
	CustomerName     string
	Total            money.Money
	PaymentAccountID *int64
	Notes            string
	Proof            *receipts.Image
	ReceivedAt       time.Time
}

// CreateSaleResult is what the workflow produced.
type CreateSaleResult struct {
	Sale       Sale                   `json:"sale"`
	Receivable obligations.Obligation `json:"receivable"`
	Proof      *receipts.ProofOutcome `json:"proof,omitempty"`
}

// CreateSale stores the sale, opens its receivable and, when a proof is
// attached, tries to settle it automatically. Proof problems never fail the
// sale.
func (s *Service) CreateSale(ctx context.Context, in CreateSaleInput) (CreateSaleResult, error) {
	if !in.Total.IsPositive() {
		return CreateSaleResult{}, fmt.Errorf("total must be greater than zero: %w", shared.ErrValidation)
	}
	if in.PaymentAccountID != nil && *in.PaymentAccountID <= 0 {
		return CreateSaleResult{}, fmt.Errorf("payment_account_id must be positive: %w", shared.ErrValidation)
	}

	sale, err := s.repo.Create(ctx, Sale{
		CustomerName:     strings.TrimSpace(in.CustomerName),
		Total:            in.Total,
		PaymentAccountID: in.PaymentAccountID,
		Notes:            strings.TrimSpace(in.Notes),
	})
	if err != nil {
		return CreateSaleResult{}, err
	}

	receivable, err := s.receivables.CreateReceivableForSale(ctx, sale.ID, sale.Total)
	if err != nil {
		if _, cancelErr := s.repo.Cancel(ctx, sale.ID, "cancelled: receivable could not be created"); cancelErr != nil {
			s.logger.Error("cancel orphaned sale", slog.Int64("sale_id", sale.ID), slog.Any("error", cancelErr))
		}
		return CreateSaleResult{}, fmt.Errorf("create receivable for sale %d: %w", sale.ID, err)
	}
	s.record(ctx, "sale.create", sale, map[string]any{"total": sale.Total.String(), "receivable_id": receivable.ID.String()})

	result := CreateSaleResult{Sale: sale, Receivable: receivable}
	if in.Proof == nil || s.proofs == nil {
		return result, nil
	}

	var account int64
	if in.PaymentAccountID != nil {
		account = *in.PaymentAccountID
	}
	outcome, err := s.proofs.AttachProof(ctx, receipts.ProofInput{
		ObligationID: receivable.ID,
		Image:        *in.Proof,
		AccountID:    account,
		ReceivedAt:   in.ReceivedAt,
	})
	var linkErr *obligations.SaleLinkError
	if err != nil && !errors.As(err, &linkErr) {
		s.logger.Warn("payment proof not processed", slog.Int64("sale_id", sale.ID), slog.Any("error", err))
		return result, nil
	}
	if linkErr != nil {
		s.logger.Warn("sale not finalized after automatic match", slog.Int64("sale_id", sale.ID), slog.Any("error", linkErr))
	}
	result.Proof = &outcome
	if outcome.Confirmed {
		result.Receivable = outcome.Obligation
		if refreshed, err := s.repo.Get(ctx, sale.ID); err == nil {
			result.Sale = refreshed
		}
	}
	return result, nil
}

// CancelSale cancels a sale with a mandatory reason and notes it on the
// receivable. Settled receivables are left untouched.
func (s *Service) CancelSale(ctx context.Context, saleID int64, reason string) (Sale, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Sale{}, fmt.Errorf("reason is required to cancel a sale: %w", shared.ErrValidation)
	}
	cancelled, err := s.repo.Cancel(ctx, saleID, "cancelled: "+reason)
	if err != nil {
		return Sale{}, err
	}
	if _, err := s.receivables.AppendSaleCancellationNote(ctx, saleID, reason); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return cancelled, fmt.Errorf("annotate receivable of sale %d: %w", saleID, err)
		}
		s.logger.Info("cancelled sale has no receivable", slog.Int64("sale_id", saleID))
	}
	s.record(ctx, "sale.cancel", cancelled, map[string]any{"reason": reason})
	s.logger.Info("sale cancelled", slog.Int64("sale_id", saleID))
	return cancelled, nil
}

// Get returns a sale.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) record(ctx context.Context, action string, sale Sale, meta map[string]any) {
	if s.audit == nil {
		return
	}
	meta["status"] = string(sale.Status)
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "sale",
		EntityID: strconv.FormatInt(sale.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

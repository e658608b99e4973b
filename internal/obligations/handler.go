package obligations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/installments"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/platform/httpx"
	"github.com/odyssey-erp/arap/internal/shared"
)

const idempotencyModule = "obligations.payables"

// IdempotencyGuard rejects replayed form submissions.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditTrail reads the audit entries of an entity.
type AuditTrail interface {
	Trail(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

// Handler exposes the reconciliation operations over JSON.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyGuard
	trail       AuditTrail
	validator   *validator.Validate
}

// NewHandler builds Handler instance. idempotency and trail may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyGuard, trail AuditTrail) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
		trail:       trail,
		validator:   validator.New(),
	}
}

// MountRoutes registers obligation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receivables", h.createReceivable)
	r.Post("/receivables/{id}/confirm", h.confirmReceipt)
	r.Post("/receivables/{id}/cancel", h.cancelReceipt)

	r.Get("/payables/preview", h.previewPayables)
	r.Post("/payables", h.createPayables)
	r.Post("/payables/{id}/confirm", h.confirmPayment)
	r.Post("/payables/{id}/cancel", h.cancelPayment)

	r.Get("/obligations", h.list)
	r.Get("/obligations/overdue", h.overdue)
	r.Get("/obligations/{id}", h.show)
	r.Get("/obligations/{id}/history", h.history)
	r.Get("/groups/{groupID}", h.group)
}

type obligationView struct {
	Obligation
	FinalAmount money.Money `json:"final_amount"`
	StatusLabel string      `json:"status_label"`
}

func viewOf(o Obligation) obligationView {
	return obligationView{Obligation: o, FinalAmount: o.FinalAmount(), StatusLabel: o.StatusLabel()}
}

func viewsOf(items []Obligation) []obligationView {
	out := make([]obligationView, 0, len(items))
	for _, o := range items {
		out = append(out, viewOf(o))
	}
	return out
}

type createReceivableRequest struct {
	SaleID int64       `json:"sale_id" validate:"required,gt=0"`
	Amount money.Money `json:"amount" validate:"gt=0"`
}

func (h *Handler) createReceivable(w http.ResponseWriter, r *http.Request) {
	var req createReceivableRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.CreateReceivableForSale(r.Context(), req.SaleID, req.Amount)
	if err != nil {
		h.fail(w, "create receivable", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewOf(o))
}

type createPayablesRequest struct {
	SupplierID   int64       `json:"supplier_id" validate:"required,gt=0"`
	Total        money.Money `json:"total" validate:"gt=0"`
	Count        int         `json:"count" validate:"required,min=1,max=360"`
	FirstDueDate string      `json:"first_due_date" validate:"required,datetime=2006-01-02"`
	DaysBetween  int         `json:"days_between"`
	Description  string      `json:"description" validate:"max=200"`
}

func (h *Handler) createPayables(w http.ResponseWriter, r *http.Request) {
	var req createPayablesRequest
	if !h.decode(w, r, &req) {
		return
	}
	first, _ := time.Parse(time.DateOnly, req.FirstDueDate)

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.fail(w, "payables idempotency", err)
			return
		}
	}

	group, err := h.service.CreatePayableGroup(r.Context(), PayableGroupInput{
		SupplierID:   req.SupplierID,
		Total:        req.Total,
		Count:        req.Count,
		FirstDueDate: first,
		DaysBetween:  req.DaysBetween,
		Description:  req.Description,
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), key); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.fail(w, "create payables", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"group_id":     group[0].GroupID,
		"installments": viewsOf(group),
	})
}

func (h *Handler) previewPayables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	total, err := money.Parse(q.Get("total"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("total: %w", shared.ErrValidation))
		return
	}
	count, _ := strconv.Atoi(q.Get("count"))
	if count > MaxInstallments {
		httpx.RespondError(w, fmt.Errorf("count must not exceed %d: %w", MaxInstallments, shared.ErrValidation))
		return
	}
	every, _ := strconv.Atoi(q.Get("days_between"))
	first := time.Now().UTC()
	if raw := q.Get("first_due_date"); raw != "" {
		first, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("first_due_date: %w", shared.ErrValidation))
			return
		}
	}
	plan := installments.Split(total, count, first, every)
	if plan == nil {
		plan = []installments.Installment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total":        installments.Sum(plan),
		"installments": plan,
	})
}

type confirmRequest struct {
	AccountID      int64       `json:"settlement_account_id" validate:"required,gt=0"`
	Adjustment     money.Money `json:"adjustment"`
	SettlementDate string      `json:"settlement_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.service.ConfirmPayment)
}

func (h *Handler) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.service.ConfirmReceipt)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, ConfirmInput) (Obligation, error)) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := time.Parse(time.DateOnly, req.SettlementDate)
	o, err := op(r.Context(), id, ConfirmInput{
		AccountID:      req.AccountID,
		Adjustment:     req.Adjustment,
		SettlementDate: date,
		ConfirmedBy:    ConfirmedByManual,
	})
	var linkErr *SaleLinkError
	if errors.As(err, &linkErr) {
		h.logger.Warn("receipt confirmed, sale not finalized", slog.Int64("sale_id", linkErr.SaleID), slog.Any("error", linkErr.Err))
		httpx.JSON(w, http.StatusOK, map[string]any{
			"obligation": viewOf(o),
			"warning":    linkErr.Error(),
		})
		return
	}
	if err != nil {
		h.fail(w, "confirm obligation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(o))
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, h.service.CancelPayment)
}

func (h *Handler) cancelReceipt(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, h.service.CancelReceipt)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, string) (Obligation, error)) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	o, err := op(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, "cancel obligation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(o))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get obligation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(o))
}

type historyEntry struct {
	ActorID int64          `json:"actor_id,omitempty"`
	Action  string         `json:"action"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      time.Time      `json:"at"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.fail(w, "get obligation", err)
		return
	}
	entries := []historyEntry{}
	if h.trail != nil {
		logs, err := h.trail.Trail(r.Context(), "obligation", id.String())
		if err != nil {
			h.fail(w, "audit trail", err)
			return
		}
		for _, l := range logs {
			entries = append(entries, historyEntry{ActorID: l.ActorID, Action: l.Action, Meta: l.Meta, At: l.At})
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"obligation_id": id, "history": entries})
}

func (h *Handler) group(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "groupID")
	if !ok {
		return
	}
	items, err := h.service.Group(r.Context(), id)
	if err != nil {
		h.fail(w, "get group", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"group_id": id, "installments": viewsOf(items)})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list obligations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"obligations": viewsOf(items)})
}

func (h *Handler) overdue(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("as_of: %w", shared.ErrValidation))
			return
		}
		asOf = parsed
	}
	report, err := h.service.Overdue(r.Context(), asOf)
	if err != nil {
		h.fail(w, "overdue obligations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":       report.AsOf.Format(time.DateOnly),
		"payables":    viewsOf(report.Payables),
		"receivables": viewsOf(report.Receivables),
	})
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		Direction: Direction(strings.ToUpper(q.Get("direction"))),
		Status:    Status(strings.ToUpper(q.Get("status"))),
	}
	if raw := q.Get("origin_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filter{}, fmt.Errorf("origin_id: %w", shared.ErrValidation)
		}
		filter.OriginID = id
	}
	if raw := q.Get("group_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("group_id: %w", shared.ErrValidation)
		}
		filter.GroupID = id
	}
	for param, dst := range map[string]**time.Time{"due_from": &filter.DueFrom, "due_to": &filter.DueTo} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return Filter{}, fmt.Errorf("%s: %w", param, shared.ErrValidation)
		}
		*dst = &t
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return filter, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, fmt.Errorf("malformed body: %w", shared.ErrValidation))
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
		}
		httpx.RespondError(w, fmt.Errorf("%s: %w", strings.Join(fields, ", "), shared.ErrValidation))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", param, shared.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, shared.ErrConflict),
		errors.Is(err, shared.ErrDuplicate):
		h.logger.Info(op, slog.Any("error", err))
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

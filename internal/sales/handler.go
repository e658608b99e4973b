package sales

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/platform/httpx"
	"github.com/odyssey-erp/arap/internal/receipts"
	"github.com/odyssey-erp/arap/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.createSale)
	r.Get("/sales/{id}", h.showSale)
	r.Post("/sales/{id}/cancel", h.cancelSale)
}

type createSaleRequest struct {
	CustomerName     string      `json:"customer_name" validate:"max=200"`
	Total            money.Money `json:"total" validate:"gt=0"`
	PaymentAccountID *int64      `json:"payment_account_id" validate:"omitempty,gt=0"`
	Notes            string      `json:"notes" validate:"max=1000"`
	ReceivedAt       string      `json:"received_at" validate:"omitempty,datetime=2006-01-02"`
}

// createSale accepts JSON, or a multipart form carrying an optional
// "receipt" file next to the same fields.
func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var (
		req   createSaleRequest
		proof *receipts.Image
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, receipts.MaxImageBytes+1<<20)
		if err := r.ParseMultipartForm(receipts.MaxImageBytes); err != nil {
			httpx.RespondError(w, fmt.Errorf("multipart form: %w", shared.ErrValidation))
			return
		}
		parsed, err := saleRequestFromForm(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		req = parsed
		if _, ok := r.MultipartForm.File["receipt"]; ok {
			img, err := receipts.ImageFromRequest(r)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			proof = &img
		}
	} else if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	var received time.Time
	if req.ReceivedAt != "" {
		received, _ = time.Parse(time.DateOnly, req.ReceivedAt)
	}

	result, err := h.service.CreateSale(r.Context(), CreateSaleInput{
		CustomerName:     req.CustomerName,
		Total:            req.Total,
		PaymentAccountID: req.PaymentAccountID,
		Notes:            req.Notes,
		Proof:            proof,
		ReceivedAt:       received,
	})
	if err != nil {
		h.logger.Error("create sale", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func saleRequestFromForm(r *http.Request) (createSaleRequest, error) {
	req := createSaleRequest{
		CustomerName: r.FormValue("customer_name"),
		Notes:        r.FormValue("notes"),
		ReceivedAt:   strings.TrimSpace(r.FormValue("received_at")),
	}
	total, err := money.Parse(r.FormValue("total"))
	if err != nil {
		return req, fmt.Errorf("total: %w", shared.ErrValidation)
	}
	req.Total = total
	if raw := strings.TrimSpace(r.FormValue("payment_account_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("payment_account_id: %w", shared.ErrValidation)
		}
		req.PaymentAccountID = &id
	}
	return req, nil
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

type cancelSaleRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelSale(w http.ResponseWriter, r *http.Request) {
	id, ok := saleID(w, r)
	if !ok {
		return
	}
	var req cancelSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	sale, err := h.service.CancelSale(r.Context(), id, req.Reason)
	if err != nil {
		h.logger.Info("cancel sale", slog.Int64("sale_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func saleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("sale id: %w", shared.ErrValidation))
		return 0, false
	}
	return id, true
}

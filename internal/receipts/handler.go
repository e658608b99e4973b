package receipts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/obligations"
	"github.com/odyssey-erp/arap/internal/platform/httpx"
	"github.com/odyssey-erp/arap/internal/shared"
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Handler exposes proof upload.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	uploadLimit int
}

// NewHandler builds a Handler. uploadsPerMinute <= 0 falls back to 10.
func NewHandler(logger *slog.Logger, service *Service, uploadsPerMinute int) *Handler {
	if uploadsPerMinute <= 0 {
		uploadsPerMinute = 10
	}
	return &Handler{logger: logger, service: service, uploadLimit: uploadsPerMinute}
}

// MountRoutes registers the upload route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.uploadLimit, time.Minute)).
		Post("/receivables/{id}/receipt", h.upload)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("id: %w", shared.ErrValidation))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		httpx.RespondError(w, fmt.Errorf("multipart form: %w", shared.ErrValidation))
		return
	}
	img, err := ImageFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, _ := strconv.ParseInt(r.FormValue("settlement_account_id"), 10, 64)
	var received time.Time
	if raw := strings.TrimSpace(r.FormValue("received_at")); raw != "" {
		received, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("received_at: %w", shared.ErrValidation))
			return
		}
	}

	outcome, err := h.service.AttachProof(r.Context(), ProofInput{
		ObligationID: id,
		Image:        img,
		AccountID:    accountID,
		ReceivedAt:   received,
	})
	var linkErr *obligations.SaleLinkError
	switch {
	case errors.As(err, &linkErr):
		h.logger.Warn("proof confirmed but sale not finalized", slog.Any("error", err))
		httpx.JSON(w, http.StatusOK, map[string]any{"outcome": outcome, "warning": linkErr.Error()})
		return
	case err != nil:
		h.logger.Info("attach proof", slog.String("obligation_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"outcome": outcome})
}

// ImageFromRequest reads the "receipt" file of a parsed multipart form.
func ImageFromRequest(r *http.Request) (Image, error) {
	file, header, err := r.FormFile("receipt")
	if err != nil {
		return Image{}, fmt.Errorf("receipt file: %w", shared.ErrValidation)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read receipt: %w", err)
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("receipt too large: %w", shared.ErrValidation)
	}
	mime := header.Header.Get("Content-Type")
	if !allowedMimeTypes[mime] {
		mime = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !allowedMimeTypes[mime] {
		return Image{}, fmt.Errorf("receipt type %q: %w", mime, shared.ErrValidation)
	}
	return Image{Data: data, MimeType: mime}, nil
}

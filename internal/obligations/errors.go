package obligations

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/arap/internal/shared"
)

var (
	ErrObligationNotFound = fmt.Errorf("obligation %w", shared.ErrNotFound)
	ErrAlreadySettled     = fmt.Errorf("obligation already settled: %w", shared.ErrInvalidState)
	ErrNotSettled         = fmt.Errorf("obligation is not settled: %w", shared.ErrInvalidState)
	ErrStaleObligation    = fmt.Errorf("obligation changed since it was read: %w", shared.ErrConflict)
	ErrReceivableExists   = fmt.Errorf("receivable already exists for sale: %w", shared.ErrDuplicate)
	ErrWrongDirection     = fmt.Errorf("operation does not apply to this obligation direction: %w", shared.ErrValidation)
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return shared.ErrValidation }

func invalid(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

// SaleLinkError is returned when a receipt was committed as settled but the
// originating sale could not be marked finalized. The settlement stands; the
// sale update can be retried.
type SaleLinkError struct {
	SaleID    int64
	Err       error
	Retryable bool
}

func (e *SaleLinkError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mark sale %d finalized: %v", e.SaleID, e.Err)
}

func (e *SaleLinkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapSaleLinkError(saleID int64, err error) error {
	if err == nil {
		return nil
	}
	return &SaleLinkError{
		SaleID:    saleID,
		Err:       err,
		Retryable: !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrInvalidState),
	}
}

package sales

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/shared"
)

// Status of a sale.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFinalized Status = "FINALIZED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrSaleNotFound  = fmt.Errorf("sale %w", shared.ErrNotFound)
	ErrSaleCancelled = fmt.Errorf("sale is cancelled: %w", shared.ErrInvalidState)
)

// Sale is the originating record of a receivable.
type Sale struct {
	ID               int64       `json:"id"`
	CustomerName     string      `json:"customer_name"`
	Total            money.Money `json:"total"`
	Status           Status      `json:"status"`
	PaymentAccountID *int64      `json:"payment_account_id,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/arap/internal/money"
)

// Repository provides persistence for sales.
type Repository interface {
	Create(ctx context.Context, sale Sale) (Sale, error)
	Get(ctx context.Context, id int64) (Sale, error)
	// Finalize moves a pending sale to FINALIZED. It is a no-op for a sale
	// that is already finalized and fails with ErrSaleCancelled for a
	// cancelled one.
	Finalize(ctx context.Context, id int64) error
	// Cancel marks the sale cancelled and appends note to its notes.
	Cancel(ctx context.Context, id int64, note string) (Sale, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const saleColumns = `id, customer_name, total, status, payment_account_id, notes, created_at, updated_at`

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s       Sale
		total   int64
		status  string
		account pgtype.Int8
	)
	if err := row.Scan(&s.ID, &s.CustomerName, &total, &status, &account, &s.Notes, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	s.Total = money.FromCents(total)
	s.Status = Status(status)
	if account.Valid {
		id := account.Int64
		s.PaymentAccountID = &id
	}
	return s, nil
}

func (r *pgRepository) Create(ctx context.Context, sale Sale) (Sale, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO sales (customer_name, total, status, payment_account_id, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+saleColumns,
		sale.CustomerName, sale.Total.Cents(), string(StatusPending), sale.PaymentAccountID, sale.Notes)
	created, err := scanSale(row)
	if err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", err)
	}
	return created, nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Sale, error) {
	return scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
}

func (r *pgRepository) Finalize(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET status = 'FINALIZED', updated_at = NOW()
WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("finalize sale %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusCancelled {
		return ErrSaleCancelled
	}
	return nil
}

func (r *pgRepository) Cancel(ctx context.Context, id int64, note string) (Sale, error) {
	row := r.pool.QueryRow(ctx, `UPDATE sales
SET status = 'CANCELLED',
    notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
    updated_at = NOW()
WHERE id = $1 AND status <> 'CANCELLED'
RETURNING `+saleColumns, id, note)
	cancelled, err := scanSale(row)
	if errors.Is(err, ErrSaleNotFound) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Sale{}, getErr
		}
		return Sale{}, ErrSaleCancelled
	}
	return cancelled, err
}

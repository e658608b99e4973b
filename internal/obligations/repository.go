package obligations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/platform/db"
	"github.com/odyssey-erp/arap/internal/shared"
)

// Repository exposes persistence operations for obligations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Obligation, error)
	Query(ctx context.Context, filter Filter) ([]Obligation, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Create(ctx context.Context, o Obligation) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (Obligation, error)
	Query(ctx context.Context, filter Filter) ([]Obligation, error)
	// Update applies patch when the stored status and version still equal
	// patch.ExpectStatus and patch.ExpectVersion.
	Update(ctx context.Context, id uuid.UUID, patch Patch) (Obligation, error)
	AppendNote(ctx context.Context, id uuid.UUID, note string) (Obligation, error)
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	q dbtx
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
	if db.IsSerializationFailure(err) {
		return ErrStaleObligation
	}
	return err
}

func (r *pgRepository) Get(ctx context.Context, id uuid.UUID) (Obligation, error) {
	return getObligation(ctx, r.pool, id, false)
}

func (r *pgRepository) Query(ctx context.Context, filter Filter) ([]Obligation, error) {
	return queryObligations(ctx, r.pool, filter)
}

const oneReceivablePerSale = "obligations_one_receivable_per_sale"

const obligationColumns = `id, direction, origin_id, group_id, installment_number, total_installments,
	description, original_amount, adjustment, due_date, status, settlement_account_id,
	settlement_date, confirmed_by, notes, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (Obligation, error) {
	var (
		o           Obligation
		original    int64
		adjustment  int64
		dueDate     pgtype.Date
		accountID   pgtype.Int8
		settledOn   pgtype.Date
		confirmedBy pgtype.Text
	)
	err := row.Scan(
		&o.ID, &o.Direction, &o.OriginID, &o.GroupID, &o.InstallmentNumber, &o.TotalInstallments,
		&o.Description, &original, &adjustment, &dueDate, &o.Status, &accountID,
		&settledOn, &confirmedBy, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Obligation{}, err
	}
	o.OriginalAmount = money.FromCents(original)
	o.Adjustment = money.FromCents(adjustment)
	if dueDate.Valid {
		d := dueDate.Time
		o.DueDate = &d
	}
	if accountID.Valid {
		id := accountID.Int64
		o.SettlementAccountID = &id
	}
	if settledOn.Valid {
		d := settledOn.Time
		o.SettlementDate = &d
	}
	if confirmedBy.Valid {
		o.ConfirmedBy = ConfirmedBy(confirmedBy.String)
	}
	return o, nil
}

func getObligation(ctx context.Context, q dbtx, id uuid.UUID, forUpdate bool) (Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligations WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanObligation(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Obligation{}, ErrObligationNotFound
	}
	if db.IsSerializationFailure(err) {
		return Obligation{}, ErrStaleObligation
	}
	if err != nil {
		return Obligation{}, fmt.Errorf("get obligation: %w", err)
	}
	return o, nil
}

func queryObligations(ctx context.Context, q dbtx, filter Filter) ([]Obligation, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + obligationColumns + ` FROM obligations WHERE 1=1`)
	args := []any{}
	argNum := 1
	add := func(clause string, value any) {
		sb.WriteString(fmt.Sprintf(clause, argNum))
		args = append(args, value)
		argNum++
	}
	if filter.Direction != "" {
		add(" AND direction = $%d", filter.Direction)
	}
	if filter.OriginID != 0 {
		add(" AND origin_id = $%d", filter.OriginID)
	}
	if filter.GroupID != uuid.Nil {
		add(" AND group_id = $%d", filter.GroupID)
	}
	if filter.Status != "" {
		add(" AND status = $%d", filter.Status)
	}
	if filter.DueFrom != nil {
		add(" AND due_date >= $%d", pgtype.Date{Time: *filter.DueFrom, Valid: true})
	}
	if filter.DueTo != nil {
		add(" AND due_date < $%d", pgtype.Date{Time: *filter.DueTo, Valid: true})
	}
	if filter.CreatedBefore != nil {
		add(" AND created_at < $%d", *filter.CreatedBefore)
	}
	if filter.CreatedAfter != nil {
		add(" AND created_at >= $%d", *filter.CreatedAfter)
	}
	sb.WriteString(" ORDER BY group_id, installment_number, created_at")
	if filter.Limit > 0 {
		add(" LIMIT $%d", filter.Limit)
	}
	if filter.Offset > 0 {
		add(" OFFSET $%d", filter.Offset)
	}

	rows, err := q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query obligations: %w", err)
	}
	defer rows.Close()
	var out []Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *pgTxRepository) Create(ctx context.Context, o Obligation) (uuid.UUID, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	var due pgtype.Date
	if o.DueDate != nil {
		due = pgtype.Date{Time: *o.DueDate, Valid: true}
	}
	_, err := r.q.Exec(ctx, `INSERT INTO obligations (
		id, direction, origin_id, group_id, installment_number, total_installments,
		description, original_amount, adjustment, due_date, status, notes
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.Direction, o.OriginID, o.GroupID, o.InstallmentNumber, o.TotalInstallments,
		o.Description, o.OriginalAmount.Cents(), o.Adjustment.Cents(), due, StatusPending, o.Notes,
	)
	if err != nil {
		if db.IsUniqueViolationOn(err, oneReceivablePerSale) {
			return uuid.Nil, ErrReceivableExists
		}
		if db.IsUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("insert obligation: %w: %w", shared.ErrDuplicate, err)
		}
		return uuid.Nil, fmt.Errorf("insert obligation: %w", err)
	}
	return o.ID, nil
}

func (r *pgTxRepository) Get(ctx context.Context, id uuid.UUID) (Obligation, error) {
	return getObligation(ctx, r.q, id, true)
}

func (r *pgTxRepository) Query(ctx context.Context, filter Filter) ([]Obligation, error) {
	return queryObligations(ctx, r.q, filter)
}

func (r *pgTxRepository) Update(ctx context.Context, id uuid.UUID, patch Patch) (Obligation, error) {
	var (
		accountID   pgtype.Int8
		settledOn   pgtype.Date
		confirmedBy pgtype.Text
	)
	if patch.SettlementAccountID != nil {
		accountID = pgtype.Int8{Int64: *patch.SettlementAccountID, Valid: true}
	}
	if patch.SettlementDate != nil {
		settledOn = pgtype.Date{Time: *patch.SettlementDate, Valid: true}
	}
	if patch.ConfirmedBy != ConfirmedByNone {
		confirmedBy = pgtype.Text{String: string(patch.ConfirmedBy), Valid: true}
	}
	row := r.q.QueryRow(ctx, `UPDATE obligations
		SET status = $4, adjustment = $5, settlement_account_id = $6, settlement_date = $7,
		    confirmed_by = $8, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND version = $3
		RETURNING `+obligationColumns,
		id, patch.ExpectStatus, patch.ExpectVersion,
		patch.Status, patch.Adjustment.Cents(), accountID, settledOn, confirmedBy,
	)
	o, err := scanObligation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM obligations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return Obligation{}, fmt.Errorf("check obligation: %w", err)
		}
		if !exists {
			return Obligation{}, ErrObligationNotFound
		}
		return Obligation{}, ErrStaleObligation
	}
	if db.IsSerializationFailure(err) {
		return Obligation{}, ErrStaleObligation
	}
	if err != nil {
		return Obligation{}, fmt.Errorf("update obligation: %w", err)
	}
	return o, nil
}

func (r *pgTxRepository) AppendNote(ctx context.Context, id uuid.UUID, note string) (Obligation, error) {
	row := r.q.QueryRow(ctx, `UPDATE obligations
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+obligationColumns, id, note)
	o, err := scanObligation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Obligation{}, ErrObligationNotFound
	}
	if err != nil {
		return Obligation{}, fmt.Errorf("append note: %w", err)
	}
	return o, nil
}

package obligations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/arap/internal/accounts"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/platform/db/dbtest"
	"github.com/odyssey-erp/arap/internal/shared"
)

func TestPostgresRepositoryLifecycle(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	bank := dbtest.SeedAccount(t, pool, "BANK-1", true)

	repo := NewRepository(pool)
	audit := shared.NewAuditLogger(pool)
	svc := NewService(repo, nil, accounts.NewService(accounts.NewRepository(pool)), audit, ServiceConfig{})

	group, err := svc.CreatePayableGroup(ctx, PayableGroupInput{
		SupplierID:   7,
		Total:        money.MustParse("100.00"),
		Count:        3,
		FirstDueDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		DaysBetween:  30,
		Description:  "Frete",
	})
	require.NoError(t, err)
	require.Len(t, group, 3)
	require.Equal(t, money.Money(3334), group[2].OriginalAmount)
	require.Equal(t, int64(1), group[0].Version)

	settled, err := svc.ConfirmPayment(ctx, group[1].ID, ConfirmInput{
		AccountID:      bank,
		Adjustment:     money.MustParse("5.00"),
		SettlementDate: time.Date(2024, 2, 9, 15, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, StatusSettled, settled.Status)
	require.Equal(t, money.MustParse("38.33"), settled.FinalAmount())
	require.Equal(t, int64(2), settled.Version)

	var stored int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT final_amount FROM obligations WHERE id = $1`, settled.ID).Scan(&stored))
	require.Equal(t, settled.FinalAmount().Cents(), stored)

	_, err = svc.ConfirmPayment(ctx, group[1].ID, ConfirmInput{AccountID: bank, SettlementDate: time.Now()})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	reopened, err := svc.CancelPayment(ctx, group[1].ID, "boleto estornado")
	require.NoError(t, err)
	require.Equal(t, StatusPending, reopened.Status)
	require.Equal(t, money.MustParse("5.00"), reopened.Adjustment)
	require.Nil(t, reopened.SettlementAccountID)
	require.Contains(t, reopened.Notes, "boleto estornado")

	pending, err := svc.List(ctx, Filter{GroupID: group[0].GroupID, Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 3)

	trail, err := audit.Trail(ctx, "obligation", group[1].ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 3)

	_, err = repo.Get(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostgresOneReceivablePerSale(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)

	create := func() error {
		return repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.Create(ctx, Obligation{
				Direction: DirectionReceivable, OriginID: 55, GroupID: uuid.New(),
				InstallmentNumber: 1, TotalInstallments: 1, OriginalAmount: 1000,
			})
			return err
		})
	}
	require.NoError(t, create())
	require.ErrorIs(t, create(), ErrReceivableExists)
}

func TestPostgresDuplicatePayablePositionIsNotReceivableConflict(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	group := uuid.New()
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	create := func() error {
		return repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.Create(ctx, Obligation{
				Direction: DirectionPayable, OriginID: 9, GroupID: group, Description: "rent",
				InstallmentNumber: 1, TotalInstallments: 1, OriginalAmount: 1000, DueDate: &due,
			})
			return err
		})
	}
	require.NoError(t, create())
	err := create()
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.NotErrorIs(t, err, ErrReceivableExists)
}

func TestPostgresConcurrentConfirm(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	bank := dbtest.SeedAccount(t, pool, "BANK-2", true)
	svc := NewService(NewRepository(pool), nil, accounts.NewService(accounts.NewRepository(pool)), nil, ServiceConfig{})

	group, err := svc.CreatePayableGroup(ctx, PayableGroupInput{
		SupplierID: 9, Total: money.MustParse("10.00"), Count: 1,
		FirstDueDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	const callers = 8
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ConfirmPayment(ctx, group[0].ID, ConfirmInput{AccountID: bank, SettlementDate: time.Now()})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		require.True(t, errors.Is(err, shared.ErrInvalidState), "unexpected error: %v", err)
	}
	require.Equal(t, 1, wins)
}

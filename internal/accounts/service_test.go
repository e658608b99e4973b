package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/arap/internal/shared"
)

type memoryAccounts map[int64]Account

func (m memoryAccounts) List(ctx context.Context, activeOnly bool) ([]Account, error) {
	var out []Account
	for _, a := range m {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m memoryAccounts) Get(ctx context.Context, id int64) (Account, error) {
	a, ok := m[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func TestActiveAccount(t *testing.T) {
	svc := NewService(memoryAccounts{
		1: {ID: 1, Code: "CX", Kind: KindCash, IsActive: true},
		2: {ID: 2, Code: "BB", Kind: KindBank, IsActive: false},
	})
	ctx := context.Background()

	acc, err := svc.ActiveAccount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "CX", acc.Code)

	_, err = svc.ActiveAccount(ctx, 2)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, err, ErrAccountInactive)

	_, err = svc.ActiveAccount(ctx, 3)
	require.ErrorIs(t, err, shared.ErrNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

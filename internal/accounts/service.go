package accounts

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/arap/internal/shared"
)

// ErrAccountInactive is returned when settling against a disabled account.
var ErrAccountInactive = fmt.Errorf("settlement account is inactive: %w", shared.ErrValidation)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx, true)
}

// ActiveAccount returns the account when it exists and accepts settlements.
func (s *Service) ActiveAccount(ctx context.Context, id int64) (Account, error) {
	acc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if !acc.IsActive {
		return Account{}, fmt.Errorf("account %s: %w", acc.Code, ErrAccountInactive)
	}
	return acc, nil
}

package sales

import (
	"context"

	"github.com/odyssey-erp/arap/internal/obligations"
)

// Gateway lets the reconciliation engine read and finalize sales.
type Gateway struct {
	repo Repository
}

var _ obligations.SaleLink = (*Gateway)(nil)

// NewGateway wraps repo.
func NewGateway(repo Repository) *Gateway {
	return &Gateway{repo: repo}
}

// GetSale returns the sale behind a receivable.
func (g *Gateway) GetSale(ctx context.Context, saleID int64) (obligations.SaleRef, error) {
	s, err := g.repo.Get(ctx, saleID)
	if err != nil {
		return obligations.SaleRef{}, err
	}
	return obligations.SaleRef{ID: s.ID, Total: s.Total, Status: string(s.Status)}, nil
}

// MarkFinalized is idempotent and never revives a cancelled sale.
func (g *Gateway) MarkFinalized(ctx context.Context, saleID int64) error {
	return g.repo.Finalize(ctx, saleID)
}

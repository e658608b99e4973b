package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/arap/internal/accounts"
	"github.com/odyssey-erp/arap/internal/obligations"
	"github.com/odyssey-erp/arap/internal/observability"
	"github.com/odyssey-erp/arap/internal/receipts"
	"github.com/odyssey-erp/arap/internal/sales"
	"github.com/odyssey-erp/arap/internal/shared"
)

// Services is the wired domain graph shared by the server and the worker.
type Services struct {
	Accounts    *accounts.Service
	Obligations *obligations.Service
	Receipts    *receipts.Service
	Sales       *sales.Service
	Audit       *shared.AuditLogger
	Idempotency *shared.IdempotencyStore

	closers []func() error
}

// BuildServices wires repositories and services. rdb may be nil, which
// disables the receipt analysis cache.
func BuildServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, rdb redis.UniversalClient, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	analyzer, closer, err := NewAnalyzer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	analyzer = receipts.NewCachedAnalyzer(analyzer, rdb, cfg.ReceiptCacheTTL, logger)

	audit := shared.NewAuditLogger(pool)
	accountService := accounts.NewService(accounts.NewRepository(pool))
	salesRepo := sales.NewRepository(pool)

	obligationService := obligations.NewService(
		obligations.NewRepository(pool),
		sales.NewGateway(salesRepo),
		accountService,
		audit,
		obligations.ServiceConfig{
			ReceivableOverdueAfter: cfg.ReceivableOverdueAfter,
			Metrics:                metrics,
			Logger:                 logger,
		},
	)
	receiptService := receipts.NewService(analyzer, obligationService, receipts.Config{
		Timeout: cfg.ReceiptAnalysisTimeout,
		Metrics: metrics,
		Logger:  logger,
	})

	s := &Services{
		Accounts:    accountService,
		Obligations: obligationService,
		Receipts:    receiptService,
		Sales:       sales.NewService(salesRepo, obligationService, receiptService, audit, logger),
		Audit:       audit,
		Idempotency: shared.NewIdempotencyStore(pool),
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	return s, nil
}

// Close releases provider clients.
func (s *Services) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewAnalyzer selects the receipt analysis provider. The returned closer may be nil.
func NewAnalyzer(ctx context.Context, cfg *Config) (receipts.Analyzer, func() error, error) {
	switch cfg.ReceiptProvider {
	case ProviderOpenAI:
		return receipts.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil, nil
	case ProviderDocumentAI:
		a, err := receipts.NewDocumentAIAnalyzer(ctx, receipts.DocumentAIConfig{
			ProjectID:       cfg.DocumentAIProjectID,
			Location:        cfg.DocumentAILocation,
			ProcessorID:     cfg.DocumentAIProcessorID,
			CredentialsFile: cfg.DocumentAICredentialsFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("receipt analyzer: %w", err)
		}
		return a, a.Close, nil
	case "", ProviderNone:
		return receipts.NoopAnalyzer{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("receipt analyzer: unknown provider %q", cfg.ReceiptProvider)
	}
}

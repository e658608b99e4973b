package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/arap/internal/app"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
	"github.com/odyssey-erp/arap/internal/sales"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding settlement accounts...")
	accountIDs, err := seedAccounts(ctx, pool)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	services, err := app.BuildServices(ctx, cfg, pool, nil, nil, logger)
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}
	defer services.Close()

	fmt.Println("→ Seeding sales...")
	if err := seedSales(ctx, services.Sales, accountIDs["CAIXA"]); err != nil {
		log.Fatalf("seed sales: %v", err)
	}

	fmt.Println("→ Seeding payables...")
	if err := seedPayables(ctx, services.Obligations); err != nil {
		log.Fatalf("seed payables: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedAccounts(ctx context.Context, pool *pgxpool.Pool) (map[string]int64, error) {
	accounts := []struct {
		code string
		name string
		kind string
	}{
		{"CAIXA", "Caixa loja", "CASH"},
		{"BANCO-001", "Conta corrente principal", "BANK"},
		{"BANCO-002", "Conta poupança", "BANK"},
	}

	batch := &pgx.Batch{}
	for _, a := range accounts {
		batch.Queue(`
			INSERT INTO settlement_accounts (code, name, kind)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, a.code, a.name, a.kind)
	}
	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	ids := make(map[string]int64, len(accounts))
	for _, a := range accounts {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", a.code, err)
		}
		ids[a.code] = id
	}
	return ids, nil
}

func seedSales(ctx context.Context, svc *sales.Service, accountID int64) error {
	demo := []struct {
		customer string
		total    string
	}{
		{"Maria Souza", "150.00"},
		{"João Lima", "89.90"},
		{"Padaria Central", "1.250,00"},
	}
	for _, d := range demo {
		total, err := money.Parse(d.total)
		if err != nil {
			return err
		}
		if _, err := svc.CreateSale(ctx, sales.CreateSaleInput{
			CustomerName:     d.customer,
			Total:            total,
			PaymentAccountID: &accountID,
		}); err != nil {
			return fmt.Errorf("%s: %w", d.customer, err)
		}
	}
	return nil
}

func seedPayables(ctx context.Context, svc *obligations.Service) error {
	first := time.Now().UTC().AddDate(0, 0, 10)
	groups := []obligations.PayableGroupInput{
		{SupplierID: 1, Total: money.MustParse("3000.00"), Count: 3, FirstDueDate: first, DaysBetween: 30, Description: "Aluguel trimestre"},
		{SupplierID: 2, Total: money.MustParse("1000.00"), Count: 3, FirstDueDate: first, DaysBetween: 15, Description: "Fornecedor de farinha"},
		{SupplierID: 3, Total: money.MustParse("420.50"), Count: 1, FirstDueDate: first.AddDate(0, 0, -20), Description: "Energia elétrica"},
	}
	for _, g := range groups {
		if _, err := svc.CreatePayableGroup(ctx, g); err != nil {
			return fmt.Errorf("%s: %w", g.Description, err)
		}
	}
	return nil
}

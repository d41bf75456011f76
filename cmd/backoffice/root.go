package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/consolidate"
	"github.com/odyssey-erp/backoffice/internal/ledger/reports"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "backoffice",
		Short: "Lending back-office ledger service",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newReportCommand(), newTokenCommand())
	return root
}

// deps holds what every command needs after configuration is loaded.
type deps struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func openRuntime(ctx context.Context) (*deps, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, logger: logger, pool: pool}, nil
}

func (rt *deps) Close() {
	rt.pool.Close()
}

// ledgerServices builds the read side shared by the server and the report command.
func (rt *deps) ledgerServices(observer reports.Observer) (*balances.Service, *reports.Service) {
	balanceSvc := balances.NewService(balances.NewRepository(rt.pool), rt.logger)
	reportSvc := reports.NewService(
		accounts.NewDirectory(accounts.NewRepository(rt.pool)),
		consolidate.New(consolidate.NewRepository(rt.pool), vouchers.Default),
		balanceSvc,
		observer,
		rt.logger,
	)
	return balanceSvc, reportSvc
}

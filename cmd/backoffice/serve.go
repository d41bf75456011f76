package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/ledger/attachments"
	"github.com/odyssey-erp/backoffice/internal/ledger/httpapi"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgersync"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/jobs"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.InTestMode() {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	var remover ledgersync.AttachmentRemover
	switch cfg.AttachmentCleanup {
	case app.CleanupQueue:
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			return fmt.Errorf("jobs client: %w", err)
		}
		defer client.Close()
		remover = client
	default:
		local, err := attachments.NewLocalRemover(cfg.AttachmentDir)
		if err != nil {
			return err
		}
		remover = local
	}

	metrics := observability.NewMetrics()

	engine := ledgersync.NewEngine(ledgersync.NewRepository(rt.pool), vouchers.Default, remover, logger)
	engine.WithGuard(ledgersync.NewIdempotencyGuard(redisClient, cfg.SyncIdempotencyTTL))
	engine.WithObserver(metrics)

	balanceSvc, reportSvc := rt.ledgerServices(metrics)

	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Identity:      app.NewIdentity(cfg.JWTSecret),
		LedgerHandler: httpapi.NewHandler(logger, engine, reportSvc, balanceSvc, cfg.RateLimitPerMinute),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("cleanup", cfg.AttachmentCleanup))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

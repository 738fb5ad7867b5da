package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/cache"
	"ledger/internal/cli"
	ophttp "ledger/internal/http"
	"ledger/internal/ledgerapi"
	"ledger/internal/log"
	"ledger/internal/worker"
)

const cacheCleanInterval = time.Minute

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info").Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)
	logger.Info("Starting ledger-worker", "metrics_addr", cfg.MetricsAddr, "sync_interval", cfg.SyncInterval)

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := cli.InitAMQP(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	if amqpClient != nil {
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled, only scheduled syncs will run")
	}

	api, err := ledgerapi.New(cfg.LedgerAPIURL, cfg.LedgerAPIToken, cfg.HTTPTimeout)
	if err != nil {
		logger.Error("Failed to initialize Ledger API client", log.FieldError, err)
		os.Exit(1)
	}

	// The worker never opens authorization windows, so it runs without a
	// surface or signal source and syncs directly instead of re-queueing.
	coord := cli.NewCoordinator(cfg, cli.Deps{API: api, Recorder: repo}, logger)
	syncWorker := worker.NewSyncWorker(coord, repo, cfg.SyncBatchSize, cfg.HistoryRetention, logger)

	caches := cache.NewManager(logger)
	caches.Register(coord.AccountCache())

	srv := ophttp.NewServer(cfg.MetricsAddr, map[string]ophttp.Check{
		"sqlite": repo.Ping,
		"ledger_api": func(ctx context.Context) error {
			_, err := coord.ListActiveAccounts(ctx)
			return err
		},
	}, logger)

	ctx, cancel := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Ops server shutdown failed", log.FieldError, err)
		}
	})
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Ops server listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return syncWorker.Run(gctx, cfg.SyncInterval)
	})
	g.Go(func() error {
		caches.Run(gctx, cacheCleanInterval)
		return nil
	})
	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeSyncRequests(gctx, syncWorker.HandleSyncRequest)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

// Package cli provides common CLI initialization utilities shared by
// cmd/ledger and cmd/ledger-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/ledgerapi"
	"ledger/internal/linking"
	"ledger/internal/log"
	lsignal "ledger/internal/signal"
	"ledger/internal/storage"
	"ledger/internal/surface"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitSQLite opens the history database.
func InitSQLite(logger *log.Logger, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository at %s: %w", dbPath, err)
	}
	return repo, nil
}

// InitAMQP connects to the broker when one is configured. A nil client means
// messaging is disabled.
func InitAMQP(logger *log.Logger, cfg *config.Config) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	// Signal queues are declared per attempt; AMQPSignalQueue is their routing prefix.
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.LedgerAppID, logger, cfg.AMQPSyncQueue)
	if err != nil {
		return nil, fmt.Errorf("initialize AMQP client: %w", err)
	}
	return client, nil
}

// Deps are the collaborators of a Coordinator built from configuration.
type Deps struct {
	API      ledgerapi.API
	Surface  linking.Surface
	Signals  linking.SignalSource
	Recorder linking.Recorder
	AMQP     *amqp.Client
}

// NewSurface builds the authorization surface selected in cfg.
func NewSurface(cfg *config.Config, logger *log.Logger) (linking.Surface, error) {
	if cfg.Surface == config.SurfaceCommand {
		return surface.NewCommand(cfg.BrowserCommand, logger)
	}
	return surface.NewBrowser(logger), nil
}

// NewSignalSource builds the completion signal source selected in cfg.
func NewSignalSource(cfg *config.Config, client *amqp.Client, logger *log.Logger) (linking.SignalSource, error) {
	if cfg.SignalMode == config.SignalAMQP {
		if client == nil {
			return nil, fmt.Errorf("signal mode %s needs AMQP_URL", config.SignalAMQP)
		}
		return amqp.NewSignalSource(client, cfg.AMQPSignalQueue, cfg.LedgerAppID), nil
	}
	return lsignal.NewLoopback(cfg.CallbackAddr, cfg.APIOrigin(), logger), nil
}

// NewCoordinator wires a Coordinator from configuration and deps.
func NewCoordinator(cfg *config.Config, deps Deps, logger *log.Logger) *linking.Coordinator {
	opts := []linking.Option{linking.WithLogger(logger)}
	if deps.Recorder != nil {
		opts = append(opts, linking.WithRecorder(deps.Recorder))
	}
	if deps.AMQP != nil {
		opts = append(opts, linking.WithSyncPublisher(deps.AMQP))
	}
	return linking.New(deps.API, deps.Surface, deps.Signals, linking.Config{
		APIBaseURL:      cfg.LedgerAPIURL,
		PollInterval:    cfg.PollInterval,
		Deadline:        cfg.LinkDeadline,
		RollbackOrphans: cfg.RollbackOrphans,
		SyncAfterLink:   cfg.SyncAfterLink,
		AccountCacheTTL: cfg.AccountCacheTTL,
	}, opts...)
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs once the signal arrives, bounded by timeout.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			return
		}

		cancel()
		if cleanup != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
			defer shutdownCancel()
			cleanup(shutdownCtx)
		}
	}()

	return ctx, cancel
}

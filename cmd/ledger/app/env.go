package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/ledgerapi"
	"ledger/internal/ledgerapi/memory"
	"ledger/internal/linking"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// env is what every subcommand runs against.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	coord  *linking.Coordinator
	repo   *storage.SQLiteRepository
	amqp   *amqp.Client
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	logger := cli.SetupLogger(level)

	e := &env{cfg: cfg, logger: logger}

	e.repo, err = cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return nil, err
	}

	e.amqp, err = cli.InitAMQP(logger, cfg)
	if err != nil {
		if cfg.SignalMode == config.SignalAMQP {
			e.close()
			return nil, err
		}
		logger.Warn("AMQP unavailable, syncing directly", log.FieldError, err)
	}

	var api ledgerapi.API
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		api = memory.New("")
		logger.Info("Dry run: using in-memory Ledger API")
	} else {
		client, err := ledgerapi.New(cfg.LedgerAPIURL, cfg.LedgerAPIToken, cfg.HTTPTimeout)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("ledger api client: %w", err)
		}
		api = client
	}

	surf, err := cli.NewSurface(cfg, logger)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("authorization surface: %w", err)
	}
	signals, err := cli.NewSignalSource(cfg, e.amqp, logger)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("signal source: %w", err)
	}

	e.coord = cli.NewCoordinator(cfg, cli.Deps{
		API:      api,
		Surface:  surf,
		Signals:  signals,
		Recorder: e.repo,
		AMQP:     e.amqp,
	}, logger)
	return e, nil
}

func (e *env) close() {
	if e.amqp != nil {
		_ = e.amqp.Close()
	}
	if e.repo != nil {
		_ = e.repo.Close()
	}
}

package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledgerapi"
	"ledger/internal/linking"
	"ledger/internal/log"
)

// Syncer is the part of the linking coordinator the worker drives.
type Syncer interface {
	SyncWithTrigger(ctx context.Context, accountID int64, kind core.ConnectionKind, trigger string) (linking.SyncOutcome, error)
	ListActiveAccounts(ctx context.Context) ([]core.BankAccount, error)
	Invalidate()
}

// Pruner drops old history.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SyncWorker imports transactions for linked accounts, on request from the
// queue and periodically for every active account.
type SyncWorker struct {
	syncer    Syncer
	pruner    Pruner
	batchSize int
	retention time.Duration
	logger    *log.Logger
}

func NewSyncWorker(syncer Syncer, pruner Pruner, batchSize int, retention time.Duration, logger *log.Logger) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		syncer:    syncer,
		pruner:    pruner,
		batchSize: batchSize,
		retention: retention,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncRequest processes one queued sync request. An error requeues it;
// requests for accounts the Ledger API no longer knows are dropped.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	w.logger.Info("Processing sync request",
		log.FieldAccountID, msg.AccountID,
		log.FieldConnectionKind, msg.Kind,
		"trigger", msg.Trigger)

	_, err := w.syncer.SyncWithTrigger(ctx, msg.AccountID, msg.Kind, core.TriggerQueue)
	switch {
	case err == nil:
		return nil
	case ledgerapi.IsNotFound(err):
		w.logger.Warn("Dropping sync request for unknown account", log.FieldAccountID, msg.AccountID)
		return nil
	}
	return fmt.Errorf("sync account %d: %w", msg.AccountID, err)
}

// SyncResult summarises one pass over the active accounts.
type SyncResult struct {
	Synced int
	Failed int
}

// SyncActiveAccounts syncs every active account, at most batchSize at a time.
// Individual failures are counted, not returned.
func (w *SyncWorker) SyncActiveAccounts(ctx context.Context) (SyncResult, error) {
	w.syncer.Invalidate()
	accounts, err := w.syncer.ListActiveAccounts(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list active accounts: %w", err)
	}
	if len(accounts) == 0 {
		return SyncResult{}, nil
	}

	w.logger.Info("Syncing active accounts", "count", len(accounts))

	var synced, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	for _, acc := range accounts {
		g.Go(func() error {
			if _, err := w.syncer.SyncWithTrigger(gctx, acc.ID, acc.ConnectionType, core.TriggerSchedule); err != nil {
				failed.Add(1)
				w.logger.Error("Scheduled sync failed", log.FieldAccountID, acc.ID, log.FieldError, err)
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{Synced: int(synced.Load()), Failed: int(failed.Load())}
	w.logger.Info("Scheduled sync complete", "synced", res.Synced, "failed", res.Failed)
	return res, ctx.Err()
}

// PruneHistory deletes history older than the retention window.
func (w *SyncWorker) PruneHistory(ctx context.Context, now time.Time) error {
	if w.pruner == nil || w.retention <= 0 {
		return nil
	}
	if _, err := w.pruner.Prune(ctx, now.Add(-w.retention)); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// Run performs a startup pass and then one pass every interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	w.tick(ctx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			w.tick(ctx, now)
			w.logger.Debug("Next scheduled sync", "at", now.Add(interval).Format("15:04:05"))
		}
	}
}

func (w *SyncWorker) tick(ctx context.Context, now time.Time) {
	if _, err := w.SyncActiveAccounts(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("Periodic sync failed", log.FieldError, err)
	}
	if err := w.PruneHistory(ctx, now); err != nil {
		w.logger.Error("History pruning failed", log.FieldError, err)
	}
}

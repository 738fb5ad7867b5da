package linking

import (
	"context"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/metrics"
)

const (
	cacheKeyAll    = "accounts:all"
	cacheKeyActive = "accounts:active"
)

// TriggerSync asks the Ledger API to import transactions for one account.
// Any failure is reported as core.ErrSync.
func (c *Coordinator) TriggerSync(ctx context.Context, accountID int64, kind core.ConnectionKind) (SyncOutcome, error) {
	return c.sync(ctx, accountID, kind, core.TriggerManual)
}

// SyncWithTrigger is TriggerSync for callers that record a different trigger,
// such as the background worker.
func (c *Coordinator) SyncWithTrigger(ctx context.Context, accountID int64, kind core.ConnectionKind, trigger string) (SyncOutcome, error) {
	return c.sync(ctx, accountID, kind, trigger)
}

func (c *Coordinator) sync(ctx context.Context, accountID int64, kind core.ConnectionKind, trigger string) (SyncOutcome, error) {
	if !kind.Valid() {
		return SyncOutcome{}, fmt.Errorf("%w: %w", core.ErrSync, core.ErrUnknownKind)
	}

	start := c.clock.Now()
	res, err := c.api.Sync(ctx, accountID, kind)
	elapsed := c.clock.Since(start)

	if err == nil && res.Error != "" {
		err = fmt.Errorf("server reported: %s", res.Error)
	}
	metrics.SyncRuns.WithLabelValues(string(kind), metrics.Result(err)).Inc()
	metrics.SyncDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	c.accounts.Purge()

	run := core.SyncRun{
		AccountID: accountID,
		Kind:      kind,
		Trigger:   trigger,
		Message:   res.Message,
		StartedAt: start,
		Duration:  elapsed,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if c.recorder != nil {
		if rerr := c.recorder.SaveSyncRun(context.WithoutCancel(ctx), run); rerr != nil {
			c.logger.Warn("Failed to record sync run", log.FieldAccountID, accountID, log.FieldError, rerr)
		}
	}

	if err != nil {
		fields := log.NewFields().WithOperation(log.OpSync).WithError(err)
		fields[log.FieldAccountID] = accountID
		fields[log.FieldConnectionKind] = string(kind)
		c.logger.Warn("Sync failed", fields.ToSlice()...)
		return SyncOutcome{}, fmt.Errorf("%w: account %d: %w", core.ErrSync, accountID, err)
	}

	c.logger.Info("Sync completed", log.FieldAccountID, accountID, log.FieldConnectionKind, kind, "trigger", trigger)
	return SyncOutcome{
		AccountID: accountID,
		Kind:      kind,
		Message:   res.Message,
		SyncedAt:  start.Add(elapsed),
	}, nil
}

// ListAccounts returns every linked account, served from a short-lived cache.
func (c *Coordinator) ListAccounts(ctx context.Context) ([]core.BankAccount, error) {
	return c.cachedList(ctx, cacheKeyAll, c.api.ListAccounts)
}

// ListActiveAccounts returns only authorized accounts.
func (c *Coordinator) ListActiveAccounts(ctx context.Context) ([]core.BankAccount, error) {
	return c.cachedList(ctx, cacheKeyActive, c.api.ListActiveAccounts)
}

func (c *Coordinator) cachedList(ctx context.Context, key string, fetch func(context.Context) ([]core.BankAccount, error)) ([]core.BankAccount, error) {
	if accs, ok := c.accounts.Get(key); ok {
		return accs, nil
	}
	accs, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	c.accounts.Set(key, accs)
	return accs, nil
}

// Unlink removes an account from the ledger.
func (c *Coordinator) Unlink(ctx context.Context, accountID int64) error {
	if err := c.api.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("unlink account %d: %w", accountID, err)
	}
	c.accounts.Purge()
	c.logger.Info("Account unlinked", log.FieldAccountID, accountID, log.FieldOperation, log.OpUnlink)
	return nil
}

// Invalidate drops cached account lists.
func (c *Coordinator) Invalidate() {
	c.accounts.Purge()
}

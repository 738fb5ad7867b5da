package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ledger/internal/core"
	"ledger/internal/linking"
	"ledger/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps the local history of link attempts and sync runs.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

var _ linking.Recorder = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("History database ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveAttempt inserts or updates one link attempt.
func (r *SQLiteRepository) SaveAttempt(ctx context.Context, rec core.AttemptRecord) error {
	row := LinkAttempt{
		ID:             rec.ID,
		AccountID:      rec.AccountID,
		AccountName:    rec.AccountName,
		ProviderCode:   rec.Provider.Code,
		ProviderName:   rec.Provider.Name,
		ConnectionKind: string(rec.Provider.Kind),
		State:          rec.State.String(),
		Reason:         rec.Reason,
		StartedAt:      rec.StartedAt.UnixMilli(),
	}
	if rec.RolledBack {
		row.RolledBack = 1
	}
	if rec.FinishedAt != nil {
		row.FinishedAt = sql.NullInt64{Int64: rec.FinishedAt.UnixMilli(), Valid: true}
	}

	if err := r.queries.UpsertLinkAttempt(ctx, row); err != nil {
		return fmt.Errorf("save link attempt %s: %w", rec.ID, err)
	}

	r.logger.Debug("Link attempt saved",
		log.FieldAttemptID, rec.ID,
		log.FieldAccountID, rec.AccountID,
		log.FieldState, rec.State.String())
	return nil
}

// RecentAttempts returns the newest attempts first.
func (r *SQLiteRepository) RecentAttempts(ctx context.Context, limit int) ([]core.AttemptRecord, error) {
	rows, err := r.queries.ListLinkAttempts(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list link attempts: %w", err)
	}

	out := make([]core.AttemptRecord, 0, len(rows))
	for _, row := range rows {
		rec := core.AttemptRecord{
			ID:          row.ID,
			AccountID:   row.AccountID,
			AccountName: row.AccountName,
			Provider: core.Provider{
				Code: row.ProviderCode,
				Name: row.ProviderName,
				Kind: core.ConnectionKind(row.ConnectionKind),
			},
			State:      core.LinkState(row.State),
			Reason:     row.Reason,
			RolledBack: row.RolledBack != 0,
			StartedAt:  time.UnixMilli(row.StartedAt),
		}
		if row.FinishedAt.Valid {
			t := time.UnixMilli(row.FinishedAt.Int64)
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveSyncRun appends one sync run.
func (r *SQLiteRepository) SaveSyncRun(ctx context.Context, run core.SyncRun) error {
	id, err := r.queries.InsertSyncRun(ctx, SyncRunRow{
		AccountID:      run.AccountID,
		ConnectionKind: string(run.Kind),
		SyncTrigger:    run.Trigger,
		Message:        run.Message,
		Error:          run.Error,
		StartedAt:      run.StartedAt.UnixMilli(),
		DurationMs:     run.Duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("save sync run for account %d: %w", run.AccountID, err)
	}

	r.logger.Debug("Sync run saved", "id", id, log.FieldAccountID, run.AccountID)
	return nil
}

// RecentSyncRuns returns the newest runs first. accountID 0 means all accounts.
func (r *SQLiteRepository) RecentSyncRuns(ctx context.Context, accountID int64, limit int) ([]core.SyncRun, error) {
	rows, err := r.queries.ListSyncRuns(ctx, accountID, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}

	out := make([]core.SyncRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.SyncRun{
			ID:        row.ID,
			AccountID: row.AccountID,
			Kind:      core.ConnectionKind(row.ConnectionKind),
			Trigger:   row.SyncTrigger,
			Message:   row.Message,
			Error:     row.Error,
			StartedAt: time.UnixMilli(row.StartedAt),
			Duration:  time.Duration(row.DurationMs) * time.Millisecond,
		})
	}
	return out, nil
}

// Prune deletes history older than before and returns the number of rows removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	attempts, err := q.DeleteLinkAttemptsBefore(ctx, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune link attempts: %w", err)
	}
	runs, err := q.DeleteSyncRunsBefore(ctx, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune sync runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	if total := attempts + runs; total > 0 {
		r.logger.Info("History pruned", "attempts", attempts, "sync_runs", runs)
	}
	return attempts + runs, nil
}

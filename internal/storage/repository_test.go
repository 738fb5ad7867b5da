package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAttemptUpserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := core.AttemptRecord{
		ID:          "a1",
		AccountName: "Salary",
		Provider:    core.Providers[0],
		State:       core.Registering,
		StartedAt:   started,
	}
	require.NoError(t, repo.SaveAttempt(ctx, rec))

	finished := started.Add(2 * time.Minute)
	rec.AccountID = 12
	rec.State = core.TimedOut
	rec.Reason = "no response within 5m0s"
	rec.RolledBack = true
	rec.FinishedAt = &finished
	require.NoError(t, repo.SaveAttempt(ctx, rec))

	got, err := repo.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(12), got[0].AccountID)
	assert.Equal(t, core.TimedOut, got[0].State)
	assert.True(t, got[0].RolledBack)
	assert.Equal(t, core.Providers[0], got[0].Provider)
	require.NotNil(t, got[0].FinishedAt)
	assert.True(t, finished.Equal(*got[0].FinishedAt))
	assert.True(t, started.Equal(got[0].StartedAt))
}

func TestRecentAttemptsOrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, repo.SaveAttempt(ctx, core.AttemptRecord{
			ID:          id,
			AccountName: id,
			Provider:    core.Providers[5],
			State:       core.Succeeded,
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := repo.RecentAttempts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
}

func TestSyncRuns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	runs := []core.SyncRun{
		{AccountID: 1, Kind: core.OpenBanking, Trigger: core.TriggerLink, Message: "ok", StartedAt: base, Duration: 1500 * time.Millisecond},
		{AccountID: 2, Kind: core.CardAPI, Trigger: core.TriggerSchedule, Error: "HTTP 502", StartedAt: base.Add(time.Minute)},
		{AccountID: 1, Kind: core.OpenBanking, Trigger: core.TriggerManual, StartedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		require.NoError(t, repo.SaveSyncRun(ctx, r))
	}

	all, err := repo.RecentSyncRuns(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.TriggerManual, all[0].Trigger)

	forOne, err := repo.RecentSyncRuns(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, forOne, 2)
	assert.Equal(t, 1500*time.Millisecond, forOne[1].Duration)
	assert.Equal(t, "ok", forOne[1].Message)

	failed, err := repo.RecentSyncRuns(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "HTTP 502", failed[0].Error)
}

func TestPrune(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveAttempt(ctx, core.AttemptRecord{ID: "old", AccountName: "x", Provider: core.Providers[0], State: core.Failed, StartedAt: cutoff.Add(-time.Hour)}))
	require.NoError(t, repo.SaveAttempt(ctx, core.AttemptRecord{ID: "new", AccountName: "y", Provider: core.Providers[0], State: core.Succeeded, StartedAt: cutoff.Add(time.Hour)}))
	require.NoError(t, repo.SaveSyncRun(ctx, core.SyncRun{AccountID: 1, Kind: core.OpenBanking, Trigger: core.TriggerSchedule, StartedAt: cutoff.Add(-time.Minute)}))

	n, err := repo.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := repo.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].ID)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	version, err := RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

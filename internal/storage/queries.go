package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type LinkAttempt struct {
	ID             string
	AccountID      int64
	AccountName    string
	ProviderCode   string
	ProviderName   string
	ConnectionKind string
	State          string
	Reason         string
	RolledBack     int64
	StartedAt      int64
	FinishedAt     sql.NullInt64
}

type SyncRunRow struct {
	ID             int64
	AccountID      int64
	ConnectionKind string
	SyncTrigger    string
	Message        string
	Error          string
	StartedAt      int64
	DurationMs     int64
}

const upsertLinkAttempt = `-- name: UpsertLinkAttempt :exec
INSERT INTO link_attempts (
    id, account_id, account_name, provider_code, provider_name,
    connection_kind, state, reason, rolled_back, started_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    account_id = excluded.account_id,
    state = excluded.state,
    reason = excluded.reason,
    rolled_back = excluded.rolled_back,
    finished_at = excluded.finished_at
`

func (q *Queries) UpsertLinkAttempt(ctx context.Context, arg LinkAttempt) error {
	_, err := q.db.ExecContext(ctx, upsertLinkAttempt,
		arg.ID,
		arg.AccountID,
		arg.AccountName,
		arg.ProviderCode,
		arg.ProviderName,
		arg.ConnectionKind,
		arg.State,
		arg.Reason,
		arg.RolledBack,
		arg.StartedAt,
		arg.FinishedAt,
	)
	return err
}

const listLinkAttempts = `-- name: ListLinkAttempts :many
SELECT id, account_id, account_name, provider_code, provider_name,
       connection_kind, state, reason, rolled_back, started_at, finished_at
FROM link_attempts
ORDER BY started_at DESC, id
LIMIT ?
`

func (q *Queries) ListLinkAttempts(ctx context.Context, limit int64) ([]LinkAttempt, error) {
	rows, err := q.db.QueryContext(ctx, listLinkAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LinkAttempt
	for rows.Next() {
		var i LinkAttempt
		if err := rows.Scan(
			&i.ID,
			&i.AccountID,
			&i.AccountName,
			&i.ProviderCode,
			&i.ProviderName,
			&i.ConnectionKind,
			&i.State,
			&i.Reason,
			&i.RolledBack,
			&i.StartedAt,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertSyncRun = `-- name: InsertSyncRun :one
INSERT INTO sync_runs (
    account_id, connection_kind, sync_trigger, message, error, started_at, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

func (q *Queries) InsertSyncRun(ctx context.Context, arg SyncRunRow) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertSyncRun,
		arg.AccountID,
		arg.ConnectionKind,
		arg.SyncTrigger,
		arg.Message,
		arg.Error,
		arg.StartedAt,
		arg.DurationMs,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listSyncRuns = `-- name: ListSyncRuns :many
SELECT id, account_id, connection_kind, sync_trigger, message, error, started_at, duration_ms
FROM sync_runs
WHERE (?1 = 0 OR account_id = ?1)
ORDER BY started_at DESC, id DESC
LIMIT ?2
`

func (q *Queries) ListSyncRuns(ctx context.Context, accountID, limit int64) ([]SyncRunRow, error) {
	rows, err := q.db.QueryContext(ctx, listSyncRuns, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SyncRunRow
	for rows.Next() {
		var i SyncRunRow
		if err := rows.Scan(
			&i.ID,
			&i.AccountID,
			&i.ConnectionKind,
			&i.SyncTrigger,
			&i.Message,
			&i.Error,
			&i.StartedAt,
			&i.DurationMs,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteLinkAttemptsBefore = `-- name: DeleteLinkAttemptsBefore :execrows
DELETE FROM link_attempts WHERE started_at < ?
`

func (q *Queries) DeleteLinkAttemptsBefore(ctx context.Context, before int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteLinkAttemptsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteSyncRunsBefore = `-- name: DeleteSyncRunsBefore :execrows
DELETE FROM sync_runs WHERE started_at < ?
`

func (q *Queries) DeleteSyncRunsBefore(ctx context.Context, before int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSyncRunsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

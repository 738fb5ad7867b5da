package linking

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// Window is an opened authorization surface.
	Window interface {
		// Closed reports whether the window is gone, by user action or Close.
		Closed() bool
		Close() error
	}

	// Surface opens authorization windows. Implementations return
	// core.ErrPopupBlocked when the environment refuses.
	Surface interface {
		Open(ctx context.Context, rawURL string) (Window, error)
	}

	// Listener delivers completion signals for one attempt. Signals are
	// already validated for origin and shape.
	Listener interface {
		Signals() <-chan core.Signal
		Close() error
	}

	// Notifier is implemented by listeners that need the callback page to post
	// to a specific address.
	Notifier interface {
		NotifyURL() string
	}

	// SignalSource creates a listener scoped to an account.
	SignalSource interface {
		Listen(ctx context.Context, accountID int64) (Listener, error)
	}

	// Recorder persists attempt and sync history.
	Recorder interface {
		SaveAttempt(ctx context.Context, rec core.AttemptRecord) error
		SaveSyncRun(ctx context.Context, run core.SyncRun) error
	}

	// SyncPublisher hands a sync request to the background worker.
	SyncPublisher interface {
		PublishSyncRequest(ctx context.Context, accountID int64, kind core.ConnectionKind) error
	}
)

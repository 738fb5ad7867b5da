package linking

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
)

var ErrInvalidTransition = errors.New("invalid link state transition")

// LinkRequest is one in-progress linking attempt. It owns the authorization
// window for its whole lifetime and releases it on every terminal transition.
type LinkRequest struct {
	ID          string
	AccountID   int64
	AccountName string
	Provider    core.Provider
	State       core.LinkState
	Reason      string
	StartedAt   time.Time
	Deadline    time.Time

	window      Window
	windowOnce  sync.Once
	windowError error
}

func newLinkRequest(name string, p core.Provider, now time.Time) *LinkRequest {
	return &LinkRequest{
		ID:          uuid.NewString(),
		AccountName: name,
		Provider:    p,
		State:       core.Selecting,
		StartedAt:   now,
	}
}

// Kind is the connection kind of the provider being linked.
func (r *LinkRequest) Kind() core.ConnectionKind {
	return r.Provider.Kind
}

// Transition moves the request forward. Terminal transitions close the window.
func (r *LinkRequest) Transition(next core.LinkState, reason string) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
	}
	r.State = next
	if next.Terminal() {
		r.Reason = reason
		// Reported by the teardown that follows every terminal transition.
		_ = r.closeWindow()
	}
	return nil
}

// attach hands window ownership to the request. A request holds one window.
func (r *LinkRequest) attach(w Window) error {
	if r.window != nil {
		return errors.New("link request already owns a window")
	}
	r.window = w
	return nil
}

// windowClosed reports whether the user closed the window.
func (r *LinkRequest) windowClosed() bool {
	return r.window != nil && r.window.Closed()
}

// closeWindow closes the window at most once, and only if it is still open.
// Every call reports the error of that single close.
func (r *LinkRequest) closeWindow() error {
	if r.window == nil {
		return nil
	}
	r.windowOnce.Do(func() {
		if !r.window.Closed() {
			r.windowError = r.window.Close()
		}
	})
	return r.windowError
}

func (r *LinkRequest) record() core.AttemptRecord {
	rec := core.AttemptRecord{
		ID:          r.ID,
		AccountID:   r.AccountID,
		AccountName: r.AccountName,
		Provider:    r.Provider,
		State:       r.State,
		Reason:      r.Reason,
		StartedAt:   r.StartedAt,
	}
	return rec
}

// Outcome is the terminal result of BeginLink.
type Outcome struct {
	AttemptID string
	AccountID int64
	State     core.LinkState
	Reason    string
}

func (o Outcome) Succeeded() bool {
	return o.State == core.Succeeded
}

func (o Outcome) String() string {
	if o.Reason != "" {
		return fmt.Sprintf("%s: %s", o.State, o.Reason)
	}
	return o.State.String()
}

// SyncOutcome is the result of TriggerSync.
type SyncOutcome struct {
	AccountID int64
	Kind      core.ConnectionKind
	Message   string
	SyncedAt  time.Time
}

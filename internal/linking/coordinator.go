// Package linking drives bank and card account linking: provisional
// registration, the external authorization window and the race between the
// completion signal, a manual close and the deadline.
package linking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/ledgerapi"
	"ledger/internal/log"
	"ledger/internal/metrics"
)

const (
	DefaultPollInterval    = time.Second
	DefaultDeadline        = 5 * time.Minute
	DefaultRollbackTimeout = 10 * time.Second
	DefaultAccountCacheTTL = 30 * time.Second
)

var ErrSignalUnavailable = errors.New("completion signal channel unavailable")

// Config tunes a Coordinator. Zero durations fall back to the defaults.
type Config struct {
	// APIBaseURL is the Ledger API base (".../api"); the provider redirects to
	// its OAuth callback.
	APIBaseURL      string
	PollInterval    time.Duration
	Deadline        time.Duration
	RollbackOrphans bool
	SyncAfterLink   bool
	RollbackTimeout time.Duration
	AccountCacheTTL time.Duration
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.RollbackTimeout <= 0 {
		c.RollbackTimeout = DefaultRollbackTimeout
	}
	if c.AccountCacheTTL <= 0 {
		c.AccountCacheTTL = DefaultAccountCacheTTL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
}

// Coordinator runs one linking attempt at a time.
type Coordinator struct {
	api       ledgerapi.API
	surface   Surface
	signals   SignalSource
	recorder  Recorder
	publisher SyncPublisher
	clock     clock.WithTicker
	logger    *log.Logger
	cfg       Config
	accounts  *cache.LRUCache[[]core.BankAccount]

	busy atomic.Bool
}

type Option func(*Coordinator)

func WithClock(c clock.WithTicker) Option {
	return func(co *Coordinator) { co.clock = c }
}

func WithLogger(l *log.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithRecorder persists attempt and sync history.
func WithRecorder(r Recorder) Option {
	return func(co *Coordinator) { co.recorder = r }
}

// WithSyncPublisher routes post-link syncs through the background worker.
func WithSyncPublisher(p SyncPublisher) Option {
	return func(co *Coordinator) { co.publisher = p }
}

func New(api ledgerapi.API, surface Surface, signals SignalSource, cfg Config, opts ...Option) *Coordinator {
	cfg.setDefaults()
	c := &Coordinator{
		api:     api,
		surface: surface,
		signals: signals,
		cfg:     cfg,
		clock:   clock.RealClock{},
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentLinking)
	c.accounts = cache.NewLRUCacheWithClock[[]core.BankAccount](2, cfg.AccountCacheTTL, c.clock)
	return c
}

// AccountCache exposes the account list cache for periodic cleanup.
func (c *Coordinator) AccountCache() cache.Cleaner {
	return c.accounts
}

// BeginLink registers a provisional account, opens the authorization window
// and waits for the first terminal event. Aborts before the wait return a
// Failed outcome together with core.ErrRegistration, core.ErrAuthURL,
// ErrSignalUnavailable or core.ErrPopupBlocked. A cancelled ctx tears the
// attempt down and returns ctx.Err().
func (c *Coordinator) BeginLink(ctx context.Context, in core.LinkInput) (Outcome, error) {
	if err := in.Validate(); err != nil {
		return Outcome{}, err
	}
	if !c.busy.CompareAndSwap(false, true) {
		return Outcome{}, core.ErrLinkInProgress
	}
	defer c.busy.Store(false)

	req := newLinkRequest(strings.TrimSpace(in.AccountName), in.Provider, c.clock.Now())
	kind := string(req.Kind())
	_ = req.Transition(core.Registering, "")

	acc, err := c.api.CreateAccount(ctx, ledgerapi.ProvisionalAccount(req.AccountName, req.Provider))
	if err != nil {
		return c.abort(ctx, req, log.OpRegister, fmt.Errorf("%w: %v", core.ErrRegistration, err))
	}
	req.AccountID = acc.ID
	c.logger.Info("Provisional account registered", log.NewFields().
		WithAttempt(req.ID, req.AccountID, kind).
		WithOperation(log.OpRegister).ToSlice()...)

	authURL, err := c.api.AuthURL(ctx, req.AccountID, req.Provider)
	if err != nil {
		return c.abort(ctx, req, log.OpAuthURL, fmt.Errorf("%w: %v", core.ErrAuthURL, err))
	}

	listener, err := c.signals.Listen(ctx, req.AccountID)
	if err != nil {
		return c.abort(ctx, req, log.OpListen, fmt.Errorf("%w: %v", ErrSignalUnavailable, err))
	}

	notify := ""
	if n, ok := listener.(Notifier); ok {
		notify = n.NotifyURL()
	}
	target, err := composeAuthURL(authURL, c.cfg.APIBaseURL, req.AccountID, req.Kind(), notify)
	if err != nil {
		_ = listener.Close()
		return c.abort(ctx, req, log.OpAuthURL, fmt.Errorf("%w: %v", core.ErrAuthURL, err))
	}

	// Armed before the window opens so the deadline covers the whole wait.
	w := &waiter{
		logger:   c.logger,
		listener: listener,
		poll:     c.clock.NewTicker(c.cfg.PollInterval),
		deadline: c.clock.NewTimer(c.cfg.Deadline),
	}
	req.Deadline = c.clock.Now().Add(c.cfg.Deadline)

	win, err := c.surface.Open(ctx, target)
	if err != nil {
		w.teardown(req)
		if !errors.Is(err, core.ErrPopupBlocked) {
			err = fmt.Errorf("%w: %v", core.ErrPopupBlocked, err)
		}
		return c.abort(ctx, req, log.OpOpen, err)
	}
	_ = req.attach(win)
	_ = req.Transition(core.AwaitingAuth, "")

	metrics.LinksInFlight.Inc()
	opened := c.clock.Now()
	out, waitErr := c.await(ctx, req, w)
	metrics.LinksInFlight.Dec()
	metrics.LinkDuration.WithLabelValues(kind, out.State.String()).Observe(c.clock.Since(opened).Seconds())

	c.finish(ctx, req)
	return out, waitErr
}

// waiter holds the resources registered for one await. teardown releases them
// exactly once whichever trigger resolved the attempt.
type waiter struct {
	logger   *log.Logger
	listener Listener
	poll     clock.Ticker
	deadline clock.Timer

	once sync.Once
}

func (w *waiter) teardown(req *LinkRequest) {
	w.once.Do(func() {
		if err := w.listener.Close(); err != nil {
			w.logger.Warn("Failed to close completion listener", log.FieldAttemptID, req.ID, log.FieldError, err)
		}
		w.poll.Stop()
		w.deadline.Stop()
		if err := req.closeWindow(); err != nil {
			w.logger.Warn("Failed to close authorization window", log.NewFields().
				WithAttempt(req.ID, req.AccountID, string(req.Kind())).
				WithOperation(log.OpTeardown).
				WithError(err).ToSlice()...)
		}
	})
}

func (c *Coordinator) await(ctx context.Context, req *LinkRequest, w *waiter) (Outcome, error) {
	defer w.teardown(req)

	signals := w.listener.Signals()
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				// Listener gone; the poll and the deadline still resolve the attempt.
				signals = nil
				c.logger.Warn("Completion signal channel closed", log.FieldAttemptID, req.ID)
				continue
			}
			if !sig.For(req.AccountID) || sig.Validate() != nil {
				metrics.SignalsIgnored.WithLabelValues("coordinator").Inc()
				continue
			}
			if sig.Type == core.SignalSuccess {
				return c.resolve(req, w, core.Succeeded, ""), nil
			}
			return c.resolve(req, w, core.Failed, sig.FailureReason()), nil

		case <-w.poll.C():
			if req.windowClosed() {
				return c.resolve(req, w, core.Cancelled, "authorization window closed"), nil
			}

		case <-w.deadline.C():
			return c.resolve(req, w, core.TimedOut, fmt.Sprintf("no response within %s", c.cfg.Deadline)), nil

		case <-ctx.Done():
			return c.resolve(req, w, core.Cancelled, ctx.Err().Error()), ctx.Err()
		}
	}
}

func (c *Coordinator) resolve(req *LinkRequest, w *waiter, state core.LinkState, reason string) Outcome {
	if err := req.Transition(state, reason); err != nil {
		c.logger.Error("Unexpected link transition", log.FieldAttemptID, req.ID, log.FieldError, err)
	}
	w.teardown(req)

	c.logger.Info("Link attempt resolved", log.NewFields().
		WithAttempt(req.ID, req.AccountID, string(req.Kind())).
		WithOutcome(req.State.String(), req.Reason).ToSlice()...)
	return outcomeOf(req)
}

// abort ends an attempt that never reached the wait.
func (c *Coordinator) abort(ctx context.Context, req *LinkRequest, stage string, err error) (Outcome, error) {
	_ = req.Transition(core.Failed, err.Error())
	metrics.LinkErrors.WithLabelValues(string(req.Kind()), stage).Inc()
	c.logger.Warn("Link attempt aborted", log.NewFields().
		WithAttempt(req.ID, req.AccountID, string(req.Kind())).
		WithOperation(stage).
		WithError(err).ToSlice()...)

	c.finish(ctx, req)
	return outcomeOf(req), err
}

// finish runs the post-terminal work: rollback or sync, history, metrics.
func (c *Coordinator) finish(ctx context.Context, req *LinkRequest) {
	metrics.LinkAttempts.WithLabelValues(string(req.Kind()), req.State.String()).Inc()

	detached := context.WithoutCancel(ctx)
	rec := req.record()

	switch {
	case req.State == core.Succeeded:
		c.accounts.Purge()
		if c.cfg.SyncAfterLink {
			c.syncAfterLink(detached, req)
		}
	case req.AccountID != 0 && c.cfg.RollbackOrphans:
		rec.RolledBack = c.rollback(detached, req)
	}

	if c.recorder != nil {
		finished := c.clock.Now()
		rec.FinishedAt = &finished
		if err := c.recorder.SaveAttempt(detached, rec); err != nil {
			c.logger.Warn("Failed to record link attempt", log.FieldAttemptID, req.ID, log.FieldError, err)
		}
	}
}

func (c *Coordinator) rollback(ctx context.Context, req *LinkRequest) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RollbackTimeout)
	defer cancel()

	err := c.api.DeleteAccount(ctx, req.AccountID)
	if err != nil && !ledgerapi.IsNotFound(err) {
		metrics.RollbacksTotal.WithLabelValues(metrics.Result(err)).Inc()
		c.logger.Warn("Failed to remove provisional account", log.NewFields().
			WithAttempt(req.ID, req.AccountID, string(req.Kind())).
			WithOperation(log.OpRollback).
			WithError(err).ToSlice()...)
		return false
	}
	metrics.RollbacksTotal.WithLabelValues(metrics.Result(nil)).Inc()
	c.accounts.Purge()
	c.logger.Info("Provisional account removed", log.FieldAttemptID, req.ID, log.FieldAccountID, req.AccountID)
	return true
}

func (c *Coordinator) syncAfterLink(ctx context.Context, req *LinkRequest) {
	if c.publisher != nil {
		err := c.publisher.PublishSyncRequest(ctx, req.AccountID, req.Kind())
		if err == nil {
			c.logger.Info("Sync request queued", log.FieldAccountID, req.AccountID)
			return
		}
		c.logger.Warn("Failed to queue sync request, syncing directly", log.FieldAccountID, req.AccountID, log.FieldError, err)
	}
	if _, err := c.sync(ctx, req.AccountID, req.Kind(), core.TriggerLink); err != nil {
		c.logger.Warn("Post-link sync failed", log.FieldAccountID, req.AccountID, log.FieldError, err)
	}
}

func outcomeOf(req *LinkRequest) Outcome {
	return Outcome{
		AttemptID: req.ID,
		AccountID: req.AccountID,
		State:     req.State,
		Reason:    req.Reason,
	}
}

// composeAuthURL appends the account id and the Ledger API callback to the
// provider authorization URL.
func composeAuthURL(authURL, apiBase string, accountID int64, kind core.ConnectionKind, notify string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("auth url %q is not absolute", authURL)
	}
	id := strconv.FormatInt(accountID, 10)

	cbQuery := url.Values{}
	cbQuery.Set("accountId", id)
	if notify != "" {
		cbQuery.Set("notify", notify)
	}
	callback := fmt.Sprintf("%s/oauth/%s/callback?%s", apiBase, kind.PathSegment(), cbQuery.Encode())

	q := u.Query()
	q.Set("accountId", id)
	q.Set("redirect_uri", callback)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package signal receives authorization completion signals on a loopback HTTP
// listener. The Ledger API callback page posts the signal to the address it
// was given in the notify parameter.
package signal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/linking"
	"ledger/internal/log"
	"ledger/internal/metrics"
)

const (
	SignalPath   = "/oauth/signal"
	maxBodyBytes = 4 << 10
)

// Loopback opens one HTTP listener per linking attempt.
type Loopback struct {
	addr   string
	origin string
	logger *log.Logger
}

var _ linking.SignalSource = (*Loopback)(nil)

// NewLoopback listens on addr (use port 0 for an ephemeral port) and accepts
// signals only from pages served by origin.
func NewLoopback(addr, origin string, logger *log.Logger) *Loopback {
	if logger == nil {
		logger = log.Discard()
	}
	return &Loopback{addr: addr, origin: origin, logger: logger.WithComponent(log.ComponentSignal)}
}

func (lb *Loopback) Listen(_ context.Context, accountID int64) (linking.Listener, error) {
	ln, err := net.Listen("tcp", lb.addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", lb.addr, err)
	}

	l := &loopbackListener{
		accountID: accountID,
		origin:    lb.origin,
		nonce:     uuid.NewString(),
		out:       make(chan core.Signal, 1),
		logger:    lb.logger,
	}
	l.notify = fmt.Sprintf("http://%s%s?%s", ln.Addr().String(), SignalPath, url.Values{"nonce": {l.nonce}}.Encode())

	l.srv = &http.Server{
		Handler:           l.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lb.logger.Error("Loopback listener stopped", log.FieldError, err)
		}
	}()

	lb.logger.Debug("Loopback listener started", "addr", ln.Addr().String(), log.FieldAccountID, accountID)
	return l, nil
}

type loopbackListener struct {
	accountID int64
	origin    string
	nonce     string
	notify    string
	srv       *http.Server
	logger    *log.Logger

	mu     sync.Mutex
	closed bool
	out    chan core.Signal
}

func (l *loopbackListener) Signals() <-chan core.Signal { return l.out }

func (l *loopbackListener) NotifyURL() string { return l.notify }

func (l *loopbackListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.out)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}

func (l *loopbackListener) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(l.logger))
	r.Options(SignalPath, l.handlePreflight)
	r.Post(SignalPath, l.handleSignal)
	return r
}

func (l *loopbackListener) allowOrigin(w http.ResponseWriter, r *http.Request) bool {
	got := r.Header.Get("Origin")
	if l.origin != "" && got != l.origin {
		return false
	}
	if got != "" {
		w.Header().Set("Access-Control-Allow-Origin", got)
		w.Header().Set("Vary", "Origin")
	}
	return true
}

func (l *loopbackListener) handlePreflight(w http.ResponseWriter, r *http.Request) {
	if !l.allowOrigin(w, r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", http.MethodPost)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

func (l *loopbackListener) handleSignal(w http.ResponseWriter, r *http.Request) {
	if !l.allowOrigin(w, r) || r.URL.Query().Get("nonce") != l.nonce {
		metrics.SignalsIgnored.WithLabelValues("loopback").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	sig, err := core.ParseSignal(body)
	if err != nil || !sig.For(l.accountID) {
		// Unrelated messages are dropped without telling the sender.
		metrics.SignalsIgnored.WithLabelValues("loopback").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	l.deliver(sig)
	w.WriteHeader(http.StatusNoContent)
}

// deliver hands the signal to the coordinator unless the listener is closed or
// a signal is already pending.
func (l *loopbackListener) deliver(sig core.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.out <- sig:
	default:
		l.logger.Debug("Completion signal already pending, dropping duplicate", log.FieldAccountID, l.accountID)
	}
}

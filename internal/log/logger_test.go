package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: slog.LevelInfo, Component: ComponentApp})

	logger.WithComponent(ComponentLinking).Info("hello")

	line := buf.String()
	if strings.Count(line, "component=") != 1 {
		t.Fatalf("expected a single component field, got %q", line)
	}
	if !strings.Contains(line, "component=linking") {
		t.Fatalf("expected linking component, got %q", line)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentLinking).
		WithAttempt("a-1", 42, "OPENBANKING").
		WithOutcome("failed", "denied").
		WithError(errors.New("boom"))

	if f[FieldAccountID] != int64(42) || f[FieldReason] != "denied" || f[FieldError] != "boom" {
		t.Fatalf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != len(f)*2 {
		t.Fatalf("ToSlice length mismatch")
	}

	noAccount := NewFields().WithAttempt("a-2", 0, "CARD_API").WithOutcome("succeeded", "")
	if _, ok := noAccount[FieldAccountID]; ok {
		t.Fatalf("zero account id should be omitted")
	}
	if _, ok := noAccount[FieldReason]; ok {
		t.Fatalf("empty reason should be omitted")
	}
}

func TestMiddlewareStoresLoggerAndLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: slog.LevelDebug, Component: ComponentHTTP})

	var fromCtx *Logger
	var requestID string
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = FromContext(r.Context())
		requestID = RequestID(r.Context())
		w.WriteHeader(http.StatusForbidden)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/oauth/signal", nil))

	if fromCtx == nil || fromCtx.Component() != ComponentHTTP {
		t.Fatalf("logger not found in request context")
	}
	if !strings.HasPrefix(requestID, "req_") {
		t.Fatalf("request id = %q", requestID)
	}
	if !strings.Contains(buf.String(), "request_id="+requestID) {
		t.Fatalf("request id missing from log output %q", buf.String())
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "status_code=403") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected default logger")
	}
}

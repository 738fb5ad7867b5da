package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldAttemptID      = "attempt_id"
	FieldAccountID      = "account_id"
	FieldAccountName    = "account_name"
	FieldProvider       = "provider"
	FieldConnectionKind = "connection_kind"
	FieldState          = "state"
	FieldOutcome        = "outcome"
	FieldReason         = "reason"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedgerAPI = "ledger_api"
	ComponentLinking   = "linking"
	ComponentSignal    = "signal"
	ComponentSurface   = "surface"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpRegister = "register"
	OpAuthURL  = "auth_url"
	OpListen   = "listen"
	OpOpen     = "open"
	OpAwait    = "await"
	OpTeardown = "teardown"
	OpRollback = "rollback"
	OpSync     = "sync"
	OpList     = "list"
	OpUnlink   = "unlink"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithAttempt adds the identifiers of a linking attempt
func (f LogFields) WithAttempt(attemptID string, accountID int64, kind string) LogFields {
	f[FieldAttemptID] = attemptID
	if accountID != 0 {
		f[FieldAccountID] = accountID
	}
	f[FieldConnectionKind] = kind
	return f
}

// WithOutcome adds the terminal state and its reason, if any
func (f LogFields) WithOutcome(state, reason string) LogFields {
	f[FieldOutcome] = state
	if reason != "" {
		f[FieldReason] = reason
	}
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}

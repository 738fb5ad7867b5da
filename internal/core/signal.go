package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SignalSuccess SignalType = "OAUTH_SUCCESS"
	SignalError   SignalType = "OAUTH_ERROR"
)

// SignalType discriminates completion signals.
type SignalType string

// Signal is the completion message posted back by the authorization flow.
// AccountID is optional on the wire; zero means "not stated".
type Signal struct {
	Type      SignalType `json:"type"`
	Message   string     `json:"message,omitempty"`
	AccountID int64      `json:"accountId,omitempty"`
}

var ErrMalformedSignal = errors.New("malformed completion signal")

// DefaultFailureReason stands in for an error signal that carries no message.
const DefaultFailureReason = "authorization failed"

// FailureReason is the reason recorded for an error signal.
func (s Signal) FailureReason() string {
	if s.Message == "" {
		return DefaultFailureReason
	}
	return s.Message
}

// ParseSignal decodes and validates a completion payload. Anything that is not
// a success or an error is rejected; an error may omit its message.
func ParseSignal(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

func (s Signal) Validate() error {
	switch s.Type {
	case SignalSuccess, SignalError:
		return nil
	}
	return fmt.Errorf("%w: unknown type %q", ErrMalformedSignal, s.Type)
}

// For reports whether the signal concerns the given account. Signals that do
// not name an account are accepted by any listener scoped to one attempt.
func (s Signal) For(accountID int64) bool {
	return s.AccountID == 0 || s.AccountID == accountID
}

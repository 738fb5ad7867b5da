package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	OpenBanking ConnectionKind = "OPENBANKING"
	CardAPI     ConnectionKind = "CARD_API"
)

const (
	Selecting    LinkState = "selecting"
	Registering  LinkState = "registering"
	AwaitingAuth LinkState = "awaiting_auth"
	Succeeded    LinkState = "succeeded"
	Failed       LinkState = "failed"
	TimedOut     LinkState = "timed_out"
	Cancelled    LinkState = "cancelled"
)

// MaskedAccountNumber is stored on provisional accounts until the provider
// reports the real number.
const MaskedAccountNumber = "****-****-****"

type (
	// ConnectionKind selects the provider family and with it the auth-url and
	// sync endpoints.
	ConnectionKind string

	// LinkState is the lifecycle position of one linking attempt.
	LinkState string

	Provider struct {
		Code string         `validate:"required"`
		Name string         `validate:"required"`
		Kind ConnectionKind `validate:"required,oneof=OPENBANKING CARD_API"`
	}

	BankAccount struct {
		ID             int64          `json:"id"`
		AccountName    string         `json:"accountName"`
		BankCode       string         `json:"bankCode"`
		BankName       string         `json:"bankName"`
		AccountNumber  string         `json:"accountNumber"`
		AccountType    string         `json:"accountType"`
		ConnectionType ConnectionKind `json:"connectionType"`
		IsActive       bool           `json:"isActive"`
		CreatedAt      *time.Time     `json:"createdAt,omitempty"`
		LastSyncedAt   *time.Time     `json:"lastSyncedAt,omitempty"`
	}

	// LinkInput is what the user supplies when starting a link.
	LinkInput struct {
		AccountName string   `validate:"required,max=100"`
		Provider    Provider `validate:"required"`
	}
)

var (
	ErrRegistration   = errors.New("account registration failed")
	ErrAuthURL        = errors.New("authorization url unavailable")
	ErrPopupBlocked   = errors.New("authorization window could not be opened")
	ErrSync           = errors.New("transaction sync failed")
	ErrInvalidInput   = errors.New("invalid link input")
	ErrLinkInProgress = errors.New("another link attempt is in progress")
	ErrUnknownKind    = errors.New("unknown connection kind")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseConnectionKind accepts the wire names as well as the path segments.
func ParseConnectionKind(s string) (ConnectionKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPENBANKING":
		return OpenBanking, nil
	case "CARD_API", "CARD":
		return CardAPI, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// PathSegment returns the URL segment used by the Ledger API for this kind.
func (k ConnectionKind) PathSegment() string {
	if k == CardAPI {
		return "card"
	}
	return "openbanking"
}

// AccountType is the account type registered for a provisional account.
func (k ConnectionKind) AccountType() string {
	if k == CardAPI {
		return "CARD"
	}
	return "CHECKING"
}

func (k ConnectionKind) Valid() bool {
	return k == OpenBanking || k == CardAPI
}

func (k ConnectionKind) String() string {
	return string(k)
}

// Terminal reports whether no further transition is allowed.
func (s LinkState) Terminal() bool {
	switch s {
	case Succeeded, Failed, TimedOut, Cancelled:
		return true
	}
	return false
}

func (s LinkState) rank() int {
	switch s {
	case Selecting:
		return 0
	case Registering:
		return 1
	case AwaitingAuth:
		return 2
	case Succeeded, Failed, TimedOut, Cancelled:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic. Registering may jump straight to Failed, but nothing leaves a
// terminal state.
func (s LinkState) CanTransition(next LinkState) bool {
	if s.Terminal() || s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

func (s LinkState) String() string {
	return string(s)
}

func (in LinkInput) Validate() error {
	if strings.TrimSpace(in.AccountName) == "" {
		return fmt.Errorf("%w: account name is empty", ErrInvalidInput)
	}
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Masked reports whether the account still carries the placeholder number.
func (a BankAccount) Masked() bool {
	return a.AccountNumber == MaskedAccountNumber
}

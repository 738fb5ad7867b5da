// Package memory is an in-process stand-in for the Ledger API, used by tests
// and the --dry-run mode of the CLI.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledgerapi"
)

// Store keeps accounts in memory. The Fail* fields inject errors into the
// matching calls.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]core.BankAccount
	syncs    map[int64]int
	authBase string

	FailCreate  error
	FailAuthURL error
	FailSync    error
	FailDelete  error

	// AuthURLCalls records the query parameters of every AuthURL call.
	AuthURLCalls []url.Values
	// Deleted records every account id passed to DeleteAccount.
	Deleted []int64
}

var _ ledgerapi.API = (*Store)(nil)

// New returns an empty store whose auth URLs point at authBase.
func New(authBase string) *Store {
	if authBase == "" {
		authBase = "https://auth.invalid/authorize"
	}
	return &Store{
		accounts: make(map[int64]core.BankAccount),
		syncs:    make(map[int64]int),
		authBase: authBase,
	}
}

func (s *Store) CreateAccount(_ context.Context, req ledgerapi.CreateAccountRequest) (core.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return core.BankAccount{}, s.FailCreate
	}
	if req.AccountName == "" {
		return core.BankAccount{}, ledgerapi.NewHTTPError(400, "memory://bank-accounts", "accountName is required")
	}

	s.nextID++
	now := time.Now()
	acc := core.BankAccount{
		ID:             s.nextID,
		AccountName:    req.AccountName,
		BankCode:       req.BankCode,
		BankName:       req.BankName,
		AccountNumber:  req.AccountNumber,
		AccountType:    req.AccountType,
		ConnectionType: req.ConnectionType,
		IsActive:       req.IsActive,
		CreatedAt:      &now,
	}
	s.accounts[acc.ID] = acc
	return acc, nil
}

func (s *Store) AuthURL(_ context.Context, accountID int64, provider core.Provider) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := url.Values{}
	for k, v := range provider.AuthParams() {
		q.Set(k, v)
	}
	s.AuthURLCalls = append(s.AuthURLCalls, q)

	if s.FailAuthURL != nil {
		return "", s.FailAuthURL
	}
	if _, ok := s.accounts[accountID]; !ok {
		return "", notFound(accountID)
	}
	return fmt.Sprintf("%s?provider=%s", s.authBase, url.QueryEscape(provider.Kind.PathSegment())), nil
}

func (s *Store) Sync(_ context.Context, accountID int64, kind core.ConnectionKind) (ledgerapi.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSync != nil {
		return ledgerapi.SyncResult{}, s.FailSync
	}
	acc, ok := s.accounts[accountID]
	if !ok {
		return ledgerapi.SyncResult{}, notFound(accountID)
	}
	if acc.ConnectionType != kind {
		return ledgerapi.SyncResult{}, ledgerapi.NewHTTPError(400, "memory://sync", "connection type mismatch")
	}
	now := time.Now()
	acc.LastSyncedAt = &now
	s.accounts[accountID] = acc
	s.syncs[accountID]++
	return ledgerapi.SyncResult{Message: "sync completed"}, nil
}

func (s *Store) DeleteAccount(_ context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, accountID)
	if s.FailDelete != nil {
		return s.FailDelete
	}
	if _, ok := s.accounts[accountID]; !ok {
		return notFound(accountID)
	}
	delete(s.accounts, accountID)
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.BankAccount, error) {
	return s.list(func(core.BankAccount) bool { return true }), nil
}

func (s *Store) ListActiveAccounts(_ context.Context) ([]core.BankAccount, error) {
	return s.list(func(a core.BankAccount) bool { return a.IsActive }), nil
}

// Activate marks an account as authorized, the way the provider callback does
// on the real server.
func (s *Store) Activate(accountID int64, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return notFound(accountID)
	}
	acc.IsActive = true
	if number != "" {
		acc.AccountNumber = number
	}
	s.accounts[accountID] = acc
	return nil
}

// Account returns a copy of one account.
func (s *Store) Account(accountID int64) (core.BankAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	return acc, ok
}

// SyncCount returns how many successful syncs ran for an account.
func (s *Store) SyncCount(accountID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs[accountID]
}

func (s *Store) list(keep func(core.BankAccount) bool) []core.BankAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.BankAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func notFound(id int64) error {
	return ledgerapi.NewHTTPError(404, fmt.Sprintf("memory://bank-accounts/%d", id), "account not found")
}

// ErrUnavailable is a convenient injected failure.
var ErrUnavailable = errors.New("ledger api unavailable")

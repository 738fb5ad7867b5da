// Package ledgerapi is a client for the bank-account endpoints of the Ledger API.
package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"ledger/internal/core"
)

// maxErrorBody bounds how much of an error response is kept in HTTPError.
const maxErrorBody = 4 << 10

// API is the subset of the Ledger API the linking flow and the sync worker use.
type API interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (core.BankAccount, error)
	AuthURL(ctx context.Context, accountID int64, provider core.Provider) (string, error)
	Sync(ctx context.Context, accountID int64, kind core.ConnectionKind) (SyncResult, error)
	DeleteAccount(ctx context.Context, accountID int64) error
	ListAccounts(ctx context.Context) ([]core.BankAccount, error)
	ListActiveAccounts(ctx context.Context) ([]core.BankAccount, error)
}

// CreateAccountRequest is the body of POST /bank-accounts.
type CreateAccountRequest struct {
	AccountName    string              `json:"accountName"`
	BankCode       string              `json:"bankCode"`
	BankName       string              `json:"bankName"`
	AccountNumber  string              `json:"accountNumber"`
	AccountType    string              `json:"accountType"`
	ConnectionType core.ConnectionKind `json:"connectionType"`
	IsActive       bool                `json:"isActive"`
}

// ProvisionalAccount builds the inactive placeholder registered before
// authorization.
func ProvisionalAccount(name string, p core.Provider) CreateAccountRequest {
	return CreateAccountRequest{
		AccountName:    name,
		BankCode:       p.Code,
		BankName:       p.Name,
		AccountNumber:  core.MaskedAccountNumber,
		AccountType:    p.Kind.AccountType(),
		ConnectionType: p.Kind,
		IsActive:       false,
	}
}

// SyncResult is what the sync endpoints return.
type SyncResult struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type authURLResponse struct {
	AuthURL string `json:"authUrl"`
}

// Client talks to the Ledger API over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Authentication is then
// the caller's business.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for baseURL (including the /api prefix). A non-empty
// token is sent as a bearer token on every request.
func New(baseURL, token string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ledger API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ledger API URL %q must be absolute", baseURL)
	}

	hc := &http.Client{Timeout: timeout}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		hc = &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport},
		}
	}

	c := &Client{baseURL: u, httpClient: hc}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API base, e.g. http://localhost:8100/api.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CreateAccount registers an account record.
func (c *Client) CreateAccount(ctx context.Context, req CreateAccountRequest) (core.BankAccount, error) {
	var acc core.BankAccount
	if err := c.do(ctx, http.MethodPost, "/bank-accounts", nil, req, &acc); err != nil {
		return core.BankAccount{}, err
	}
	if acc.ID == 0 {
		return core.BankAccount{}, fmt.Errorf("create account: response carries no id")
	}
	return acc, nil
}

// AuthURL asks for the provider authorization URL of an account. Open banking
// sends the bank code, cards send the issuer name.
func (c *Client) AuthURL(ctx context.Context, accountID int64, provider core.Provider) (string, error) {
	q := url.Values{}
	for k, v := range provider.AuthParams() {
		q.Set(k, v)
	}

	var out authURLResponse
	path := fmt.Sprintf("/bank-accounts/%d/%s/auth-url", accountID, provider.Kind.PathSegment())
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return "", err
	}
	if out.AuthURL == "" {
		return "", fmt.Errorf("auth url: empty authUrl in response")
	}
	return out.AuthURL, nil
}

// Sync triggers the server-side transaction import for an account.
func (c *Client) Sync(ctx context.Context, accountID int64, kind core.ConnectionKind) (SyncResult, error) {
	var out SyncResult
	path := fmt.Sprintf("/bank-accounts/%d/%s/sync", accountID, kind.PathSegment())
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return SyncResult{}, err
	}
	return out, nil
}

// DeleteAccount unlinks an account.
func (c *Client) DeleteAccount(ctx context.Context, accountID int64) error {
	return c.do(ctx, http.MethodDelete, "/bank-accounts/"+strconv.FormatInt(accountID, 10), nil, nil, nil)
}

// ListAccounts returns every account visible to the caller.
func (c *Client) ListAccounts(ctx context.Context) ([]core.BankAccount, error) {
	var out []core.BankAccount
	if err := c.do(ctx, http.MethodGet, "/bank-accounts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveAccounts returns the accounts that completed authorization.
func (c *Client) ListActiveAccounts(ctx context.Context) ([]core.BankAccount, error) {
	var out []core.BankAccount
	if err := c.do(ctx, http.MethodGet, "/bank-accounts/active", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	target := c.endpoint(path, q)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return NewHTTPError(resp.StatusCode, target, strings.TrimSpace(string(msg)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

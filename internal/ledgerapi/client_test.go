package ledgerapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api", "secret-token", 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api", "", time.Second)
	require.Error(t, err)
}

func TestCreateAccountSendsProvisionalRecord(t *testing.T) {
	provider, err := core.FindProvider("088", core.CardAPI)
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/bank-accounts", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Groceries card", body["accountName"])
		assert.Equal(t, "088", body["bankCode"])
		assert.Equal(t, "Shinhan Card", body["bankName"])
		assert.Equal(t, core.MaskedAccountNumber, body["accountNumber"])
		assert.Equal(t, "CARD", body["accountType"])
		assert.Equal(t, "CARD_API", body["connectionType"])
		assert.Equal(t, false, body["isActive"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 17, "accountName": "Groceries card", "connectionType": "CARD_API"})
	})

	acc, err := c.CreateAccount(context.Background(), ProvisionalAccount("Groceries card", provider))
	require.NoError(t, err)
	assert.Equal(t, int64(17), acc.ID)
	assert.Equal(t, core.CardAPI, acc.ConnectionType)
}

func TestCreateAccountWithoutID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.CreateAccount(context.Background(), CreateAccountRequest{AccountName: "x"})
	require.Error(t, err)
}

func TestAuthURLQueryByKind(t *testing.T) {
	tests := []struct {
		name      string
		provider  core.Provider
		wantPath  string
		wantKey   string
		wantValue string
		absentKey string
	}{
		{
			name:      "open banking sends bank code",
			provider:  core.Provider{Code: "004", Name: "KB Kookmin Bank", Kind: core.OpenBanking},
			wantPath:  "/api/bank-accounts/9/openbanking/auth-url",
			wantKey:   "bankCode",
			wantValue: "004",
			absentKey: "cardCompany",
		},
		{
			name:      "card sends issuer name",
			provider:  core.Provider{Code: "004", Name: "KB Kookmin Card", Kind: core.CardAPI},
			wantPath:  "/api/bank-accounts/9/card/auth-url",
			wantKey:   "cardCompany",
			wantValue: "KB Kookmin Card",
			absentKey: "bankCode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, tt.wantValue, r.URL.Query().Get(tt.wantKey))
				assert.False(t, r.URL.Query().Has(tt.absentKey))
				_, _ = w.Write([]byte(`{"authUrl":"https://auth.example/authorize?client_id=abc"}`))
			})

			got, err := c.AuthURL(context.Background(), 9, tt.provider)
			require.NoError(t, err)
			assert.Equal(t, "https://auth.example/authorize?client_id=abc", got)
		})
	}
}

func TestAuthURLEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"authUrl":""}`))
	})
	_, err := c.AuthURL(context.Background(), 1, core.Providers[0])
	require.Error(t, err)
}

func TestSyncEndpointByKind(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"message":"done"}`))
	})

	res, err := c.Sync(context.Background(), 3, core.OpenBanking)
	require.NoError(t, err)
	assert.Equal(t, "/api/bank-accounts/3/openbanking/sync", gotPath)
	assert.Equal(t, "done", res.Message)

	_, err = c.Sync(context.Background(), 4, core.CardAPI)
	require.NoError(t, err)
	assert.Equal(t, "/api/bank-accounts/4/card/sync", gotPath)
}

func TestServerErrorBecomesHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token expired"}`, http.StatusBadRequest)
	})

	_, err := c.Sync(context.Background(), 3, core.CardAPI)
	require.Error(t, err)

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode)
	assert.Contains(t, he.Message, "token expired")
}

func TestDeleteAndNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/api/bank-accounts/5" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	})

	require.NoError(t, c.DeleteAccount(context.Background(), 5))

	err := c.DeleteAccount(context.Background(), 6)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestListAccounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bank-accounts":
			_, _ = w.Write([]byte(`[{"id":1,"accountName":"a","isActive":true},{"id":2,"accountName":"b","isActive":false}]`))
		case "/api/bank-accounts/active":
			_, _ = w.Write([]byte(`[{"id":1,"accountName":"a","isActive":true}]`))
		default:
			http.NotFound(w, r)
		}
	})

	all, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[1].IsActive)

	active, err := c.ListActiveAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), active[0].ID)
}

func TestRequestHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListAccounts(ctx)
	require.Error(t, err)
}

package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	"ledger/internal/core"
)

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name    string
		flags   map[string]string
		want    string
		wantErr bool
	}{
		{"by name", map[string]string{"provider": "kb kookmin card"}, "KB Kookmin Card", false},
		{"by code", map[string]string{"code": "020", "kind": "card"}, "Hana Card", false},
		{"by code default kind", map[string]string{"code": "020"}, "Woori Bank", false},
		{"both", map[string]string{"provider": "Hana Bank", "code": "003"}, "", true},
		{"neither", nil, "", true},
		{"unknown kind", map[string]string{"code": "020", "kind": "fax"}, "", true},
		{"unknown name", map[string]string{"provider": "Piggy Bank"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newLinkCmd()
			for k, v := range tt.flags {
				require.NoError(t, cmd.Flags().Set(k, v))
			}
			p, err := resolveProvider(cmd)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestParseAccountID(t *testing.T) {
	id, err := parseAccountID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		_, err := parseAccountID(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintAccounts(t *testing.T) {
	var buf bytes.Buffer
	printAccounts(&buf, nil)
	assert.Equal(t, "No linked accounts.\n", buf.String())

	buf.Reset()
	synced := time.Date(2025, 3, 1, 9, 30, 0, 0, time.Local)
	printAccounts(&buf, []core.BankAccount{
		{ID: 1, AccountName: "Salary", BankName: "Shinhan Bank", ConnectionType: core.OpenBanking, AccountNumber: "110-***-1234", IsActive: true, LastSyncedAt: &synced},
		{ID: 2, AccountName: "Card", BankName: "Hana Card", ConnectionType: core.CardAPI, AccountNumber: core.MaskedAccountNumber},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "2025-03-01 09:30")
	assert.Contains(t, lines[2], "pending")
	assert.Contains(t, lines[2], "never")
}

func TestProvidersCommand(t *testing.T) {
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"providers"})

	require.NoError(t, root.Execute())
	out := buf.String()
	assert.Contains(t, out, "Shinhan Bank")
	assert.Contains(t, out, "KB Kookmin Card")
	assert.Equal(t, len(core.Providers)+1, strings.Count(out, "\n"))
}

func TestVersionCommandJSON(t *testing.T) {
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version", "--format", "json"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), `"version": "dev"`)
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"link", "providers", "accounts", "sync", "unlink", "history", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	link, _, err := root.Find([]string{"link"})
	require.NoError(t, err)
	assert.Error(t, link.Args(link, nil), "link needs an account name")
	assert.NoError(t, link.Args(link, []string{"Salary"}))
}

func TestLinkPrompt(t *testing.T) {
	p := core.Provider{Name: "Shinhan Bank"}

	browser := linkPrompt(p, 5*time.Minute, config.SurfaceBrowser)
	assert.Contains(t, browser, "Shinhan Bank")
	assert.Contains(t, browser, "5m0s")
	assert.Contains(t, browser, "Ctrl+C")
	assert.NotContains(t, browser, "close the window")

	command := linkPrompt(p, 90*time.Second, config.SurfaceCommand)
	assert.Contains(t, command, "1m30s")
	assert.Contains(t, command, "close the window to cancel")
}

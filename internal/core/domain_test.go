package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParseConnectionKind(t *testing.T) {
	cases := []struct {
		in   string
		want ConnectionKind
		ok   bool
	}{
		{"OPENBANKING", OpenBanking, true},
		{"openbanking", OpenBanking, true},
		{"CARD_API", CardAPI, true},
		{"card", CardAPI, true},
		{" card_api ", CardAPI, true},
		{"MANUAL", "", false},
		{"", "", false},
	}
	for i, tc := range cases {
		got, err := ParseConnectionKind(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrUnknownKind) {
				t.Fatalf("case %d expected ErrUnknownKind, got %v", i, err)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("case %d got %q want %q", i, got, tc.want)
		}
	}
}

func TestConnectionKindEndpoints(t *testing.T) {
	if OpenBanking.PathSegment() != "openbanking" || CardAPI.PathSegment() != "card" {
		t.Fatalf("unexpected path segments")
	}
	if OpenBanking.AccountType() != "CHECKING" || CardAPI.AccountType() != "CARD" {
		t.Fatalf("unexpected account types")
	}
}

func TestLinkStateTransitions(t *testing.T) {
	cases := []struct {
		from, to LinkState
		ok       bool
	}{
		{Selecting, Registering, true},
		{Registering, AwaitingAuth, true},
		{Registering, Failed, true},
		{AwaitingAuth, Succeeded, true},
		{AwaitingAuth, TimedOut, true},
		{AwaitingAuth, Cancelled, true},
		{AwaitingAuth, Registering, false},
		{Registering, Registering, false},
		{Succeeded, Failed, false},
		{TimedOut, Succeeded, false},
		{Cancelled, Cancelled, false},
		{LinkState("bogus"), Succeeded, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestLinkInputValidate(t *testing.T) {
	bank, err := FindProvider("088", OpenBanking)
	if err != nil {
		t.Fatalf("find provider: %v", err)
	}

	if err := (LinkInput{AccountName: "Main", Provider: bank}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := []LinkInput{
		{AccountName: "", Provider: bank},
		{AccountName: "   ", Provider: bank},
		{AccountName: strings.Repeat("x", 101), Provider: bank},
		{AccountName: "Main"},
		{AccountName: "Main", Provider: Provider{Code: "1", Name: "x", Kind: "MANUAL"}},
	}
	for i, in := range bad {
		if err := in.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestProviderAuthParams(t *testing.T) {
	card, err := FindProvider("004", CardAPI)
	if err != nil {
		t.Fatalf("find card: %v", err)
	}
	if got := card.AuthParams(); got["cardCompany"] != "KB Kookmin Card" || got["bankCode"] != "" {
		t.Fatalf("card params = %v", got)
	}

	bank, err := FindProviderByName("kb kookmin bank")
	if err != nil {
		t.Fatalf("find bank: %v", err)
	}
	if got := bank.AuthParams(); got["bankCode"] != "004" || got["cardCompany"] != "" {
		t.Fatalf("bank params = %v", got)
	}

	if _, err := FindProvider("999", OpenBanking); err == nil {
		t.Fatalf("expected error for unknown code")
	}
}

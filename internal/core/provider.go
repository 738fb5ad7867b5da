package core

import (
	"fmt"
	"strings"
)

// Providers is the catalogue offered when linking. Bank and card issuers of
// the same group share a code, so lookups need the kind as well.
var Providers = []Provider{
	{Code: "088", Name: "Shinhan Bank", Kind: OpenBanking},
	{Code: "004", Name: "KB Kookmin Bank", Kind: OpenBanking},
	{Code: "020", Name: "Woori Bank", Kind: OpenBanking},
	{Code: "003", Name: "Hana Bank", Kind: OpenBanking},
	{Code: "011", Name: "NH Nonghyup Bank", Kind: OpenBanking},
	{Code: "088", Name: "Shinhan Card", Kind: CardAPI},
	{Code: "004", Name: "KB Kookmin Card", Kind: CardAPI},
	{Code: "020", Name: "Hana Card", Kind: CardAPI},
}

// FindProvider resolves a provider by code and kind.
func FindProvider(code string, kind ConnectionKind) (Provider, error) {
	for _, p := range Providers {
		if p.Code == code && p.Kind == kind {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("no %s provider with code %q", kind, code)
}

// FindProviderByName resolves a provider by its display name, ignoring case.
func FindProviderByName(name string) (Provider, error) {
	name = strings.TrimSpace(name)
	for _, p := range Providers {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("no provider named %q", name)
}

// AuthParams returns the provider-specific query parameters for the auth-url
// endpoint: the bank code for open banking, the display name for cards.
func (p Provider) AuthParams() map[string]string {
	if p.Kind == CardAPI {
		return map[string]string{"cardCompany": p.Name}
	}
	return map[string]string{"bankCode": p.Code}
}

func (p Provider) String() string {
	return fmt.Sprintf("%s (%s, %s)", p.Name, p.Code, p.Kind.PathSegment())
}

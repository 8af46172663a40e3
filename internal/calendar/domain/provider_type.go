package domain

import (
	"fmt"
	"strings"
)

// ProviderType names the calendar backend a session's events live in.
type ProviderType string

const (
	ProviderGoogle    ProviderType = "google"
	ProviderMicrosoft ProviderType = "microsoft"
	ProviderApple     ProviderType = "apple"
	ProviderCalDAV    ProviderType = "caldav"
	// ProviderICS is a set of read-only iCalendar feeds.
	ProviderICS ProviderType = "ics"
)

type providerTraits struct {
	name     string
	oauth    bool
	readOnly bool
}

// ordered so ProviderTypes is stable for help output.
var providerTable = []struct {
	kind ProviderType
	providerTraits
}{
	{ProviderGoogle, providerTraits{name: "Google Calendar", oauth: true}},
	{ProviderMicrosoft, providerTraits{name: "Microsoft Outlook", oauth: true}},
	{ProviderApple, providerTraits{name: "Apple Calendar"}},
	{ProviderCalDAV, providerTraits{name: "CalDAV"}},
	{ProviderICS, providerTraits{name: "iCalendar feeds", readOnly: true}},
}

func (p ProviderType) traits() (providerTraits, bool) {
	for _, row := range providerTable {
		if row.kind == p {
			return row.providerTraits, true
		}
	}
	return providerTraits{}, false
}

func (p ProviderType) String() string {
	return string(p)
}

// IsValid reports whether p is one of the supported backends.
func (p ProviderType) IsValid() bool {
	_, ok := p.traits()
	return ok
}

// RequiresOAuth reports whether connecting p goes through an OAuth2 consent flow.
func (p ProviderType) RequiresOAuth() bool {
	t, _ := p.traits()
	return t.oauth
}

// CanWrite reports whether events can be moved through p.
func (p ProviderType) CanWrite() bool {
	t, ok := p.traits()
	return ok && !t.readOnly
}

// DisplayName falls back to the raw value for unknown providers.
func (p ProviderType) DisplayName() string {
	if t, ok := p.traits(); ok {
		return t.name
	}
	return string(p)
}

// ProviderTypes lists the supported backends.
func ProviderTypes() []ProviderType {
	out := make([]ProviderType, 0, len(providerTable))
	for _, row := range providerTable {
		out = append(out, row.kind)
	}
	return out
}

// ParseProviderType validates a configured provider name. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseProviderType(value string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(value)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, value)
	}
	return p, nil
}

package oauth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// Provider is the per-provider consent and token flow; *Service implements it.
type Provider interface {
	AuthURL(state string) string
	ExchangeAndStore(ctx context.Context, userID uuid.UUID, code string) (*oauth2.Token, error)
	TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error)
	Revoke(ctx context.Context, userID uuid.UUID) error
}

// ErrNotConfigured is returned for a provider with no registered client.
var ErrNotConfigured = errors.New("oauth not configured")

// EndpointFor returns the OAuth endpoint of a calendar provider. CalDAV uses
// basic auth and has none.
func EndpointFor(provider calendarDomain.ProviderType) (oauth2.Endpoint, error) {
	switch provider {
	case calendarDomain.ProviderGoogle:
		return google.Endpoint, nil
	case calendarDomain.ProviderMicrosoft:
		return microsoft.AzureADEndpoint("common"), nil
	}
	return oauth2.Endpoint{}, fmt.Errorf("%w: %s does not use oauth", calendarDomain.ErrUnknownProvider, provider)
}

// Registry holds the OAuth flow of each provider with client credentials.
type Registry struct {
	mu        sync.RWMutex
	providers map[calendarDomain.ProviderType]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[calendarDomain.ProviderType]Provider)}
}

// Register adds or replaces the flow for provider.
func (r *Registry) Register(provider calendarDomain.ProviderType, flow Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = flow
}

// Service returns the flow for provider, or nil.
func (r *Registry) Service(provider calendarDomain.ProviderType) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[provider]
}

// Require is Service with an ErrNotConfigured error naming the provider.
func (r *Registry) Require(provider calendarDomain.ProviderType) (Provider, error) {
	if flow := r.Service(provider); flow != nil {
		return flow, nil
	}
	return nil, fmt.Errorf("%w for %s", ErrNotConfigured, provider)
}

// Providers lists the configured providers, sorted.
func (r *Registry) Providers() []calendarDomain.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// Lookup resolves a user-supplied provider name to its flow.
func (r *Registry) Lookup(name string) (Provider, error) {
	provider, err := calendarDomain.ParseProviderType(name)
	if err != nil {
		return nil, err
	}
	if !provider.RequiresOAuth() {
		return nil, fmt.Errorf("%s does not use oauth", provider)
	}
	return r.Require(provider)
}

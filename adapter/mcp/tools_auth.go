package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	"github.com/google/uuid"
)

type authURLInput struct {
	Provider string `json:"provider,omitempty"`
}

type authURLOutput struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type authExchangeInput struct {
	Provider string `json:"provider,omitempty"`
	Code     string `json:"code" jsonschema:"required"`
}

type authStatusOutput struct {
	Providers []providerStatus `json:"providers"`
}

type providerStatus struct {
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	OAuth     bool   `json:"oauth"`
	Connected bool   `json:"connected"`
	Writable  bool   `json:"writable"`
}

// authTools resolves providers by name, defaulting to google.
type authTools struct {
	registry *identityOAuth.Registry
	userID   uuid.UUID
}

func (a authTools) flow(provider string) (identityOAuth.Provider, error) {
	if a.registry == nil {
		return nil, errors.New("auth service not configured")
	}
	if provider == "" {
		provider = calendarDomain.ProviderGoogle.String()
	}
	return a.registry.Lookup(provider)
}

func (a authTools) url(_ context.Context, in authURLInput) (authURLOutput, error) {
	flow, err := a.flow(in.Provider)
	if err != nil {
		return authURLOutput{}, err
	}
	state := uuid.NewString()
	return authURLOutput{URL: flow.AuthURL(state), State: state}, nil
}

func (a authTools) exchange(ctx context.Context, in authExchangeInput) (map[string]any, error) {
	flow, err := a.flow(in.Provider)
	if err != nil {
		return nil, err
	}
	if a.userID == uuid.Nil {
		return nil, errors.New("current user not configured")
	}
	if in.Code == "" {
		return nil, errors.New("code is required")
	}
	if _, err := flow.ExchangeAndStore(ctx, a.userID, in.Code); err != nil {
		return nil, err
	}
	return map[string]any{"stored": true}, nil
}

func (a authTools) status(ctx context.Context, _ struct{}) (authStatusOutput, error) {
	var out authStatusOutput
	for _, p := range calendarDomain.ProviderTypes() {
		st := providerStatus{Provider: p.String(), Name: p.DisplayName(), OAuth: p.RequiresOAuth(), Writable: p.CanWrite()}
		if st.OAuth && a.registry != nil {
			if flow := a.registry.Service(p); flow != nil {
				src, err := flow.TokenSource(ctx, a.userID)
				st.Connected = err == nil && src != nil
			}
		}
		out.Providers = append(out.Providers, st)
	}
	return out, nil
}

func registerAuthTools(srv *mcp.Server, deps ToolDependencies) error {
	a := authTools{registry: deps.OAuth}
	if deps.App != nil {
		a.userID = deps.App.CurrentUserID
	}

	srv.Tool("auth.url").
		Description("Generate OAuth2 authorization URL for google or microsoft").
		Handler(a.url)
	srv.Tool("auth.exchange").
		Description("Exchange OAuth2 code for tokens and store them").
		Handler(a.exchange)
	srv.Tool("auth.status").
		Description("List calendar providers and whether each is connected").
		Handler(a.status)
	return nil
}

package mcp

import (
	"context"
	"testing"

	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTools_NotConfigured(t *testing.T) {
	a := authTools{}
	_, err := a.url(context.Background(), authURLInput{})
	assert.EqualError(t, err, "auth service not configured")
}

func TestAuthTools_RejectsReadOnlyProvider(t *testing.T) {
	a := authTools{registry: identityOAuth.NewRegistry()}
	_, err := a.url(context.Background(), authURLInput{Provider: "ics"})
	assert.Error(t, err)
}

func TestAuthTools_ExchangeNeedsUser(t *testing.T) {
	reg := identityOAuth.NewRegistry()
	reg.Register("google", &identityOAuth.Service{})
	a := authTools{registry: reg}

	_, err := a.exchange(context.Background(), authExchangeInput{Code: "abc"})
	assert.EqualError(t, err, "current user not configured")

	a.userID = uuid.New()
	_, err = a.exchange(context.Background(), authExchangeInput{})
	assert.EqualError(t, err, "code is required")
}

func TestAuthTools_Status(t *testing.T) {
	out, err := authTools{}.status(context.Background(), struct{}{})
	require.NoError(t, err)
	require.NotEmpty(t, out.Providers)

	byName := map[string]providerStatus{}
	for _, p := range out.Providers {
		byName[p.Provider] = p
		assert.False(t, p.Connected, p.Provider)
	}
	assert.True(t, byName["google"].OAuth)
	assert.True(t, byName["google"].Writable)
	assert.False(t, byName["ics"].OAuth)
	assert.False(t, byName["ics"].Writable)
}

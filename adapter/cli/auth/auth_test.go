package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	sharedCrypto "github.com/felixgeelhaar/reslot/internal/shared/infrastructure/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type mockOAuthService struct {
	mock.Mock
}

func (m *mockOAuthService) AuthURL(state string) string {
	return m.Called(state).String(0)
}

func (m *mockOAuthService) ExchangeAndStore(ctx context.Context, userID uuid.UUID, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, userID, code)
	token, _ := args.Get(0).(*oauth2.Token)
	return token, args.Error(1)
}

func (m *mockOAuthService) TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error) {
	args := m.Called(ctx, userID)
	src, _ := args.Get(0).(oauth2.TokenSource)
	return src, args.Error(1)
}

func (m *mockOAuthService) Revoke(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func setup(t *testing.T) (*mockOAuthService, uuid.UUID) {
	t.Helper()
	svc := new(mockOAuthService)
	multi := identityOAuth.NewRegistry()
	multi.Register(calendarDomain.ProviderGoogle, svc)

	userID := uuid.New()
	app := cli.NewApp(nil, nil, nil, nil, nil, nil)
	app.SetCurrentUserID(userID)
	app.SetOAuthService(multi)
	cli.SetApp(app)
	t.Cleanup(func() { cli.SetApp(nil) })
	return svc, userID
}

func run(stdin string, args ...string) (string, error) {
	authProvider, authCode = string(calendarDomain.ProviderGoogle), ""

	var out bytes.Buffer
	Cmd.SetOut(&out)
	Cmd.SetErr(&out)
	Cmd.SetIn(strings.NewReader(stdin))
	Cmd.SetArgs(args)
	err := Cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestURL(t *testing.T) {
	svc, _ := setup(t)
	svc.On("AuthURL", mock.AnythingOfType("string")).Return("https://accounts.example.com/auth")

	out, err := run("", "url")
	require.NoError(t, err)
	assert.Contains(t, out, "https://accounts.example.com/auth")
	assert.Contains(t, out, "State: ")
	svc.AssertExpectations(t)
}

func TestURL_UnconfiguredProvider(t *testing.T) {
	setup(t)

	_, err := run("", "url", "--provider", "microsoft")
	assert.EqualError(t, err, "oauth not configured for microsoft")

	_, err = run("", "url", "--provider", "caldav")
	assert.EqualError(t, err, "caldav does not use oauth")
}

func TestExchange(t *testing.T) {
	svc, userID := setup(t)
	svc.On("ExchangeAndStore", mock.Anything, userID, "abc").Return(&oauth2.Token{AccessToken: "t"}, nil)

	out, err := run("", "exchange", "--code", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Tokens stored.")

	_, err = run("", "exchange")
	assert.EqualError(t, err, "missing --code")
}

func TestConnect(t *testing.T) {
	svc, userID := setup(t)
	svc.On("AuthURL", mock.Anything).Return("https://accounts.example.com/auth")
	svc.On("ExchangeAndStore", mock.Anything, userID, "code-123").Return(&oauth2.Token{AccessToken: "t"}, nil)

	out, err := run("code-123\n", "connect", "Google")
	require.NoError(t, err)
	assert.Contains(t, out, "Authorize Google Calendar")
	assert.Contains(t, out, "Connected Google Calendar.")
	svc.AssertExpectations(t)
}

func TestConnect_EmptyCode(t *testing.T) {
	svc, _ := setup(t)
	svc.On("AuthURL", mock.Anything).Return("https://accounts.example.com/auth")

	_, err := run("\n", "connect", "google")
	assert.EqualError(t, err, "authorization code is required")
	svc.AssertNotCalled(t, "ExchangeAndStore", mock.Anything, mock.Anything, mock.Anything)
}

func TestDisconnect(t *testing.T) {
	svc, userID := setup(t)
	svc.On("Revoke", mock.Anything, userID).Return(errors.New("db down")).Once()
	svc.On("Revoke", mock.Anything, userID).Return(nil).Once()

	_, err := run("", "disconnect", "google")
	assert.EqualError(t, err, "failed to disconnect: db down")

	out, err := run("", "disconnect", "google")
	require.NoError(t, err)
	assert.Contains(t, out, "Disconnected Google Calendar.")
}

func TestList(t *testing.T) {
	svc, userID := setup(t)
	svc.On("TokenSource", mock.Anything, userID).Return(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), nil)

	out, err := run("", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "google     Google Calendar    connected")
	assert.Contains(t, out, "microsoft  Microsoft Outlook  oauth not configured")
	assert.Contains(t, out, "ics        iCalendar feeds    configured via environment, read-only")

	cli.SetApp(nil)
	out, err = run("", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No OAuth providers configured.")
}

func TestKeygen(t *testing.T) {
	cli.SetApp(nil)
	out, err := run("", "keygen")
	require.NoError(t, err)
	key := strings.TrimPrefix(strings.TrimSpace(out), "RESLOT_ENCRYPTION_KEY=")
	_, err = sharedCrypto.NewAESGCMFromBase64Key(key)
	assert.NoError(t, err)
}

func TestNoApp(t *testing.T) {
	cli.SetApp(nil)
	_, err := run("", "url")
	assert.ErrorContains(t, err, "auth service not configured")
}

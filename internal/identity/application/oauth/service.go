package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	sharedCrypto "github.com/felixgeelhaar/reslot/internal/shared/infrastructure/crypto"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrTokenNotFound is returned when a user has not authorized a provider yet.
var ErrTokenNotFound = errors.New("oauth token not found")

// TokenRepository persists sealed tokens, one per user and provider.
type TokenRepository interface {
	Save(ctx context.Context, token StoredToken) error
	FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*StoredToken, error)
	Delete(ctx context.Context, userID uuid.UUID, provider string) error
}

// StoredToken is a token at rest. AccessToken and RefreshToken hold base64
// AES-GCM ciphertext.
type StoredToken struct {
	UserID       uuid.UUID
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scopes       []string
}

// Config is one provider's OAuth client.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	RedirectURL  string
	Scopes       []string
}

func (c Config) validate() error {
	if c.Provider == "" {
		return errors.New("oauth provider is required")
	}
	var missing []string
	for name, v := range map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"auth_url":      c.Endpoint.AuthURL,
		"token_url":     c.Endpoint.TokenURL,
		"redirect_url":  c.RedirectURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("oauth configuration is incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Service runs the consent flow for one provider and keeps the user's token
// sealed in a TokenRepository.
type Service struct {
	conf   *oauth2.Config
	name   string
	repo   TokenRepository
	seal   sealer
	logger *slog.Logger
}

func NewService(cfg Config, repo TokenRepository, encrypter sharedCrypto.Encrypter, logger *slog.Logger) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if repo == nil || encrypter == nil {
		return nil, errors.New("oauth dependencies are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		name:   cfg.Provider,
		repo:   repo,
		seal:   sealer{enc: encrypter},
		logger: logger.With("provider", cfg.Provider),
	}, nil
}

// Provider is the name tokens are stored under.
func (s *Service) Provider() string {
	return s.name
}

// AuthURL asks for offline access and forces the consent screen so the
// provider always hands out a refresh token.
func (s *Service) AuthURL(state string) string {
	return s.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) ExchangeAndStore(ctx context.Context, userID uuid.UUID, code string) (*oauth2.Token, error) {
	token, err := s.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange %s authorization code: %w", s.name, err)
	}
	if err := s.save(ctx, userID, token); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "oauth token stored", "user_id", userID)
	return token, nil
}

func (s *Service) Revoke(ctx context.Context, userID uuid.UUID) error {
	return s.repo.Delete(ctx, userID, s.name)
}

// TokenSource refreshes on expiry and writes each new token back. Refreshes
// outlive ctx's cancellation.
func (s *Service) TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error) {
	stored, err := s.repo.FindByUserAndProvider(ctx, userID, s.name)
	if err != nil {
		return nil, err
	}
	token, err := s.seal.open(*stored)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s %w", s.name, err)
	}

	detached := context.WithoutCancel(ctx)
	return oauth2.ReuseTokenSource(token, &savingSource{
		inner:  s.conf.TokenSource(detached, token),
		save:   func(t *oauth2.Token) error { return s.save(detached, userID, t) },
		logger: s.logger.With("user_id", userID),
		last:   token.AccessToken,
	}), nil
}

func (s *Service) save(ctx context.Context, userID uuid.UUID, token *oauth2.Token) error {
	stored, err := s.seal.close(token)
	if err != nil {
		return err
	}
	stored.UserID, stored.Provider, stored.Scopes = userID, s.name, s.conf.Scopes
	return s.repo.Save(ctx, stored)
}

// savingSource persists tokens from inner whose access token changed.
type savingSource struct {
	inner  oauth2.TokenSource
	save   func(*oauth2.Token) error
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *savingSource) Token() (*oauth2.Token, error) {
	token, err := p.inner.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken == p.last {
		return token, nil
	}
	// A failed write still hands out the token; the next refresh retries.
	if err := p.save(token); err != nil {
		p.logger.Warn("failed to persist refreshed oauth token", "error", err)
		return token, nil
	}
	p.last = token.AccessToken
	p.logger.Debug("oauth token refreshed", "expires_at", token.Expiry)
	return token, nil
}

// ParseScopes splits a comma or space separated scope list.
func ParseScopes(raw string) []string {
	scopes := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}

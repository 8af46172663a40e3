package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresOAuthTokenRepository handles persistence for OAuth tokens.
type PostgresOAuthTokenRepository struct {
	conn database.Connection
}

// NewPostgresOAuthTokenRepository creates a new PostgresOAuthTokenRepository.
func NewPostgresOAuthTokenRepository(conn database.Connection) *PostgresOAuthTokenRepository {
	return &PostgresOAuthTokenRepository{conn: conn}
}

// Save upserts a token for a user/provider.
func (r *PostgresOAuthTokenRepository) Save(ctx context.Context, token oauth.StoredToken) error {
	query := `
		INSERT INTO oauth_tokens (
			user_id, provider, access_token, refresh_token, token_type, expiry, scopes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			scopes = EXCLUDED.scopes,
			updated_at = NOW()
	`
	scopes := token.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		expiry = &token.Expiry
	}

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		token.UserID,
		token.Provider,
		token.AccessToken,
		nullString(token.RefreshToken),
		token.TokenType,
		expiry,
		pq.Array(scopes),
	)
	return err
}

// FindByUserAndProvider fetches a token for a user/provider.
func (r *PostgresOAuthTokenRepository) FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*oauth.StoredToken, error) {
	query := `
		SELECT user_id, provider, access_token, refresh_token, token_type, expiry, scopes
		FROM oauth_tokens
		WHERE user_id = $1 AND provider = $2
	`

	var token oauth.StoredToken
	var refresh, tokenType *string
	var expiry *time.Time
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, userID, provider).Scan(
		&token.UserID,
		&token.Provider,
		&token.AccessToken,
		&refresh,
		&tokenType,
		&expiry,
		&token.Scopes,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, oauth.ErrTokenNotFound
		}
		return nil, err
	}
	if refresh != nil {
		token.RefreshToken = *refresh
	}
	if tokenType != nil {
		token.TokenType = *tokenType
	}
	if expiry != nil {
		token.Expiry = *expiry
	}
	return &token, nil
}

// Delete removes a user's token for a provider. Deleting a missing token is not an error.
func (r *PostgresOAuthTokenRepository) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = $1 AND provider = $2`, userID, provider)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

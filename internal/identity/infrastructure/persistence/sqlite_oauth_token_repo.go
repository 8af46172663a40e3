package persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLiteOAuthTokenRepository handles persistence for OAuth tokens using SQLite.
// Scopes are stored space separated, the way they travel on the wire.
type SQLiteOAuthTokenRepository struct {
	conn database.Connection
	now  func() time.Time
}

// NewSQLiteOAuthTokenRepository creates a new SQLiteOAuthTokenRepository.
func NewSQLiteOAuthTokenRepository(conn database.Connection) *SQLiteOAuthTokenRepository {
	return &SQLiteOAuthTokenRepository{conn: conn, now: time.Now}
}

// Save upserts a token for a user/provider.
func (r *SQLiteOAuthTokenRepository) Save(ctx context.Context, token oauth.StoredToken) error {
	query := `
		INSERT INTO oauth_tokens (
			user_id, provider, access_token, refresh_token, token_type, expiry, scopes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = COALESCE(excluded.refresh_token, oauth_tokens.refresh_token),
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at
	`
	var expiry sql.NullString
	if !token.Expiry.IsZero() {
		expiry = sql.NullString{String: token.Expiry.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	now := r.now().UTC().Format(time.RFC3339)

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		token.UserID.String(),
		token.Provider,
		token.AccessToken,
		nullString(token.RefreshToken),
		token.TokenType,
		expiry,
		strings.Join(token.Scopes, " "),
		now,
		now,
	)
	return err
}

// FindByUserAndProvider fetches a token for a user/provider.
func (r *SQLiteOAuthTokenRepository) FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*oauth.StoredToken, error) {
	query := `
		SELECT access_token, refresh_token, token_type, expiry, scopes
		FROM oauth_tokens
		WHERE user_id = ? AND provider = ?
	`

	var refresh, tokenType, expiry sql.NullString
	var scopes string
	token := oauth.StoredToken{UserID: userID, Provider: provider}
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, userID.String(), provider).Scan(
		&token.AccessToken,
		&refresh,
		&tokenType,
		&expiry,
		&scopes,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, oauth.ErrTokenNotFound
		}
		return nil, err
	}

	token.RefreshToken = refresh.String
	token.TokenType = tokenType.String
	if expiry.Valid {
		token.Expiry, _ = time.Parse(time.RFC3339Nano, expiry.String)
	}
	token.Scopes = strings.Fields(scopes)
	return &token, nil
}

// Delete removes a user's token for a provider.
func (r *SQLiteOAuthTokenRepository) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = ? AND provider = ?`, userID.String(), provider)
	return err
}

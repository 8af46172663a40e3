package oauth

import (
	"fmt"

	sharedCrypto "github.com/felixgeelhaar/reslot/internal/shared/infrastructure/crypto"
	"golang.org/x/oauth2"
)

// sealer converts between live tokens and their encrypted stored form.
type sealer struct {
	enc sharedCrypto.Encrypter
}

func (s sealer) close(token *oauth2.Token) (StoredToken, error) {
	access, err := sharedCrypto.EncryptString(s.enc, token.AccessToken)
	if err != nil {
		return StoredToken{}, fmt.Errorf("encrypt access token: %w", err)
	}
	var refresh string
	if token.RefreshToken != "" {
		if refresh, err = sharedCrypto.EncryptString(s.enc, token.RefreshToken); err != nil {
			return StoredToken{}, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	return StoredToken{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}, nil
}

// open errors read "access token: ..." or "refresh token: ...".
func (s sealer) open(stored StoredToken) (*oauth2.Token, error) {
	access, err := sharedCrypto.DecryptString(s.enc, stored.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	var refresh string
	if stored.RefreshToken != "" {
		if refresh, err = sharedCrypto.DecryptString(s.enc, stored.RefreshToken); err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}, nil
}

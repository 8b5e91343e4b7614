// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oauth2

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Domain errors (internal, mapped to wire errors at the service boundary).
var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client already exists")
	ErrCodeExpired         = errors.New("authorization code expired")
	ErrCodeAlreadyUsed     = errors.New("authorization code already used")
	ErrCodeNotFound        = errors.New("authorization code not found")
	ErrInvalidClientCreds  = errors.New("invalid client credentials")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrTokenNotFound       = errors.New("token not found")
)

// Client is a registered OAuth2 client. Confidential only: every client
// must present a client_secret at the token endpoint; public, no-secret
// client flows are not supported.
type Client struct {
	ID               string
	ClientID         string
	ClientSecretHash string
	ClientName       string
	RedirectURIs     []string
	AllowedScopes    []string
	IsConfidential   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// ValidateRedirectURI requires an exact match against the registered set.
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// ValidateScope requires every space-separated token in requestedScope to
// be a member of the client's allowed scopes.
func (c *Client) ValidateScope(requestedScope string) bool {
	if requestedScope == "" {
		return true
	}

	allowed := make(map[string]bool, len(c.AllowedScopes))
	for _, s := range c.AllowedScopes {
		allowed[s] = true
	}

	for _, tok := range strings.Fields(requestedScope) {
		if !allowed[tok] {
			return false
		}
	}
	return true
}

// AuthorizationCode is a short-lived, single-use grant issued at the end of
// the authorize/consent round trip.
type AuthorizationCode struct {
	ID                  string
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// IsExpired checks if the authorization code has expired.
func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// Token is a single issued access/refresh token pair. The teacher's
// separate access_tokens/refresh_tokens tables are merged into one row, so
// that refresh rotation is a single conditional UPDATE ... RETURNING rather
// than a two-table transaction (see TokenRepository.Rotate).
type Token struct {
	ID                    string
	AccessToken           string
	RefreshToken          string
	ClientID              string
	UserID                string
	Scope                 string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	IsRevoked             bool
	CreatedAt             time.Time
}

// IsAccessExpired checks if the access token has expired.
func (t *Token) IsAccessExpired() bool {
	return time.Now().After(t.AccessTokenExpiresAt)
}

// IsRefreshExpired checks if the refresh token has expired.
func (t *Token) IsRefreshExpired() bool {
	return time.Now().After(t.RefreshTokenExpiresAt)
}

// TokenBlacklist records an explicitly revoked token. ExpiresAt is copied
// from the token's own expiry so the row can be pruned without tracking
// which kind of token it belonged to.
type TokenBlacklist struct {
	ID            string
	TokenJTI      string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
	Reason        string
}

// IsExpired checks if the blacklist entry itself may be swept.
func (b *TokenBlacklist) IsExpired() bool {
	return time.Now().After(b.ExpiresAt)
}

// ClientRepository defines the interface for OAuth2 client persistence.
type ClientRepository interface {
	Create(ctx context.Context, client *Client) error
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
	GetByID(ctx context.Context, id string) (*Client, error)
	Update(ctx context.Context, client *Client) error
	Delete(ctx context.Context, clientID string) error
	List(ctx context.Context) ([]*Client, error)
}

// AuthorizationCodeRepository defines the interface for authorization code
// persistence.
type AuthorizationCodeRepository interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	GetByCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeByCode atomically deletes and returns the code row, via
	// DELETE ... RETURNING, so concurrent exchanges of the same code
	// resolve to exactly one winner.
	ConsumeByCode(ctx context.Context, code, clientID string) (*AuthorizationCode, error)

	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenRepository defines the interface for Token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *Token) error
	GetByAccessToken(ctx context.Context, accessToken string) (*Token, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*Token, error)

	// Rotate atomically replaces a non-revoked, non-expired refresh token
	// (and its paired access token) with freshly generated values, via a
	// conditional UPDATE ... WHERE ... RETURNING. Returns ErrTokenNotFound
	// if the refresh token is absent, expired, or already revoked.
	Rotate(ctx context.Context, oldRefreshToken, newAccessToken, newRefreshToken, newScope string, newAccessExpiresAt, newRefreshExpiresAt time.Time) (*Token, error)

	Revoke(ctx context.Context, accessToken string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// BlacklistRepository defines the interface for TokenBlacklist persistence.
type BlacklistRepository interface {
	Create(ctx context.Context, entry *TokenBlacklist) error
	GetByTokenJTI(ctx context.Context, jti string) (*TokenBlacklist, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

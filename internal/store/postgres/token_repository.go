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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// TokenRepository implements oauth2.TokenRepository against PostgreSQL. A
// single row holds the access/refresh pair issued together, so rotation is
// one UPDATE rather than a delete-then-insert across two tables.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token *oauth2.Token) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tokens (
			id, access_token, refresh_token, client_id, user_id, scope,
			access_token_expires_at, refresh_token_expires_at, is_revoked, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		token.ID, token.AccessToken, token.RefreshToken, token.ClientID, token.UserID, token.Scope,
		token.AccessTokenExpiresAt, token.RefreshTokenExpiresAt, token.IsRevoked, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

func scanToken(row rowScanner) (*oauth2.Token, error) {
	var token oauth2.Token

	err := row.Scan(
		&token.ID, &token.AccessToken, &token.RefreshToken, &token.ClientID, &token.UserID, &token.Scope,
		&token.AccessTokenExpiresAt, &token.RefreshTokenExpiresAt, &token.IsRevoked, &token.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &token, nil
}

func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, access_token, refresh_token, client_id, user_id, scope,
			access_token_expires_at, refresh_token_expires_at, is_revoked, created_at
		FROM tokens
		WHERE access_token = $1
	`, accessToken)
	return scanToken(row)
}

func (r *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, access_token, refresh_token, client_id, user_id, scope,
			access_token_expires_at, refresh_token_expires_at, is_revoked, created_at
		FROM tokens
		WHERE refresh_token = $1
	`, refreshToken)
	return scanToken(row)
}

// Rotate atomically replaces both the access and refresh token strings in
// a single conditional UPDATE, guarded by the old refresh token still being
// live. Reuse of a refresh token already rotated away matches zero rows
// and fails with ErrTokenNotFound.
func (r *TokenRepository) Rotate(ctx context.Context, oldRefreshToken, newAccessToken, newRefreshToken, newScope string, newAccessExpiresAt, newRefreshExpiresAt time.Time) (*oauth2.Token, error) {
	row := r.db.pool.QueryRow(ctx, `
		UPDATE tokens SET
			access_token = $2,
			refresh_token = $3,
			scope = $4,
			access_token_expires_at = $5,
			refresh_token_expires_at = $6
		WHERE refresh_token = $1
			AND is_revoked = false
			AND refresh_token_expires_at > $7
		RETURNING id, access_token, refresh_token, client_id, user_id, scope,
			access_token_expires_at, refresh_token_expires_at, is_revoked, created_at
	`, oldRefreshToken, newAccessToken, newRefreshToken, newScope, newAccessExpiresAt, newRefreshExpiresAt, time.Now())

	return scanToken(row)
}

func (r *TokenRepository) Revoke(ctx context.Context, accessToken string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tokens SET is_revoked = true
		WHERE access_token = $1
	`, accessToken)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrTokenNotFound
	}

	return nil
}

// DeleteExpired deletes tokens whose refresh token has expired. The server
// does not schedule it. The access token side of a
// still-live refresh window is left intact even if it has already
// expired, since a refresh can still mint a fresh access token.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tokens WHERE refresh_token_expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return result.RowsAffected(), nil
}

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

// AuthorizationCodeRepository implements oauth2.AuthorizationCodeRepository
// against PostgreSQL.
type AuthorizationCodeRepository struct {
	db *DB
}

// NewAuthorizationCodeRepository creates a new authorization code repository.
func NewAuthorizationCodeRepository(db *DB) *AuthorizationCodeRepository {
	return &AuthorizationCodeRepository{db: db}
}

func (r *AuthorizationCodeRepository) Create(ctx context.Context, code *oauth2.AuthorizationCode) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO authorization_codes (
			id, code, client_id, user_id, redirect_uri, scope,
			code_challenge, code_challenge_method, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		code.ID, code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scope,
		code.CodeChallenge, code.CodeChallengeMethod, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}

	return nil
}

func (r *AuthorizationCodeRepository) GetByCode(ctx context.Context, codeStr string) (*oauth2.AuthorizationCode, error) {
	var code oauth2.AuthorizationCode

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, code, client_id, user_id, redirect_uri, scope,
			code_challenge, code_challenge_method, expires_at, created_at
		FROM authorization_codes
		WHERE code = $1
	`, codeStr).Scan(
		&code.ID, &code.Code, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scope,
		&code.CodeChallenge, &code.CodeChallengeMethod, &code.ExpiresAt, &code.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	return &code, nil
}

// ConsumeByCode atomically deletes and returns a code bound to clientID.
// Using DELETE ... RETURNING makes consumption single-winner under
// concurrent exchange attempts: only the request that actually removes the
// row gets a non-error result.
func (r *AuthorizationCodeRepository) ConsumeByCode(ctx context.Context, codeStr, clientID string) (*oauth2.AuthorizationCode, error) {
	var code oauth2.AuthorizationCode

	err := r.db.pool.QueryRow(ctx, `
		DELETE FROM authorization_codes
		WHERE code = $1 AND client_id = $2
		RETURNING id, code, client_id, user_id, redirect_uri, scope,
			code_challenge, code_challenge_method, expires_at, created_at
	`, codeStr, clientID).Scan(
		&code.ID, &code.Code, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scope,
		&code.CodeChallenge, &code.CodeChallengeMethod, &code.ExpiresAt, &code.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	return &code, nil
}

// DeleteExpired deletes all expired authorization codes. The server does
// not schedule it; only expired rows still present are removed per call.
func (r *AuthorizationCodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM authorization_codes WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}

	return result.RowsAffected(), nil
}

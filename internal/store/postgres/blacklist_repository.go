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

// BlacklistRepository implements oauth2.BlacklistRepository against
// PostgreSQL.
type BlacklistRepository struct {
	db *DB
}

// NewBlacklistRepository creates a new blacklist repository.
func NewBlacklistRepository(db *DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

func (r *BlacklistRepository) Create(ctx context.Context, entry *oauth2.TokenBlacklist) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO token_blacklist (id, token_jti, reason, blacklisted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_jti) DO NOTHING
	`, entry.ID, entry.TokenJTI, entry.Reason, entry.BlacklistedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	return nil
}

// GetByTokenJTI returns (nil, nil) on a miss — a missing blacklist entry
// is not itself an error condition for a validating caller.
func (r *BlacklistRepository) GetByTokenJTI(ctx context.Context, jti string) (*oauth2.TokenBlacklist, error) {
	var entry oauth2.TokenBlacklist

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, token_jti, reason, blacklisted_at, expires_at
		FROM token_blacklist
		WHERE token_jti = $1
	`, jti).Scan(&entry.ID, &entry.TokenJTI, &entry.Reason, &entry.BlacklistedAt, &entry.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blacklist entry: %w", err)
	}

	return &entry, nil
}

// DeleteExpired sweeps blacklist entries whose own expiry has passed.
// Called lazily from Validator.ValidateAccessToken; no scheduled job calls
// it.
func (r *BlacklistRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM token_blacklist WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blacklist entries: %w", err)
	}

	return result.RowsAffected(), nil
}

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
	"strings"
)

// ValidatedToken is what the Validator exposes to a protected handler
// after a bearer token has cleared every check.
type ValidatedToken struct {
	UserID   string
	ClientID string
	Scope    string
}

// HasScope reports whether required is present in the token's scope set.
func (v *ValidatedToken) HasScope(required string) bool {
	for _, s := range strings.Fields(v.Scope) {
		if s == required {
			return true
		}
	}
	return false
}

// Validator implements bearer-token validation and scope enforcement.
type Validator struct {
	tokenRepo     TokenRepository
	blacklistRepo BlacklistRepository
}

// NewValidator creates a new Validator.
func NewValidator(tokenRepo TokenRepository, blacklistRepo BlacklistRepository) *Validator {
	return &Validator{tokenRepo: tokenRepo, blacklistRepo: blacklistRepo}
}

// ValidateAccessToken resolves a bearer access token, rejecting it if
// missing, revoked, expired, or present in the TokenBlacklist. A blacklist
// entry that has itself expired is lazily swept and does not block
// validation.
func (v *Validator) ValidateAccessToken(ctx context.Context, accessToken string) (*ValidatedToken, error) {
	token, err := v.tokenRepo.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, ErrTokenNotFound
	}

	if token.IsRevoked {
		return nil, ErrTokenRevoked
	}
	if token.IsAccessExpired() {
		return nil, ErrTokenExpired
	}

	jti := hashToken(accessToken)
	entry, err := v.blacklistRepo.GetByTokenJTI(ctx, jti)
	if err == nil && entry != nil {
		if entry.IsExpired() {
			_, _ = v.blacklistRepo.DeleteExpired(ctx)
		} else {
			return nil, ErrTokenRevoked
		}
	}

	return &ValidatedToken{
		UserID:   token.UserID,
		ClientID: token.ClientID,
		Scope:    token.Scope,
	}, nil
}

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
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
)

// IntrospectionResult is the JSON body returned by POST /tokens/introspect.
// Active is false for any invalid, expired, or blacklisted token; the
// reason is never disclosed.
type IntrospectionResult struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

// RevocationService implements token revocation and introspection.
type RevocationService struct {
	tokenRepo     TokenRepository
	blacklistRepo BlacklistRepository
	validator     *Validator
	auditLogger   audit.Logger
}

// NewRevocationService creates a new RevocationService.
func NewRevocationService(tokenRepo TokenRepository, blacklistRepo BlacklistRepository, validator *Validator, auditLogger audit.Logger) *RevocationService {
	return &RevocationService{
		tokenRepo:     tokenRepo,
		blacklistRepo: blacklistRepo,
		validator:     validator,
		auditLogger:   auditLogger,
	}
}

// Revoke looks the access token up and, if it is known (expired or already
// revoked tokens included), inserts a blacklist row whose
// expires_at mirrors the token's own expiry so the entry can later be
// garbage-collected. Per RFC 7009 §2.2, revocation of an unknown or
// already revoked token is still a successful, idempotent no-op from the
// caller's perspective.
func (s *RevocationService) Revoke(ctx context.Context, tokenString, reason string) error {
	token, err := s.tokenRepo.GetByAccessToken(ctx, tokenString)
	if err != nil {
		return nil
	}

	entry := &TokenBlacklist{
		ID:            generateID(),
		TokenJTI:      hashToken(tokenString),
		BlacklistedAt: time.Now(),
		ExpiresAt:     token.AccessTokenExpiresAt,
		Reason:        reason,
	}

	if err := s.blacklistRepo.Create(ctx, entry); err != nil {
		return NewError(ErrServerError, "failed to revoke token")
	}
	_ = s.tokenRepo.Revoke(ctx, tokenString)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  token.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{audit.AttrClientID: token.ClientID, audit.AttrReason: reason},
	})

	return nil
}

// Introspect reports a token's state without ever disclosing why an
// inactive token failed validation.
func (s *RevocationService) Introspect(ctx context.Context, tokenString string) *IntrospectionResult {
	validated, err := s.validator.ValidateAccessToken(ctx, tokenString)
	if err != nil {
		return &IntrospectionResult{Active: false}
	}

	token, err := s.tokenRepo.GetByAccessToken(ctx, tokenString)
	if err != nil {
		return &IntrospectionResult{Active: false}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIntrospected,
		ActorID:  validated.UserID,
		Resource: audit.ResourceToken,
	})

	return &IntrospectionResult{
		Active:   true,
		Scope:    validated.Scope,
		ClientID: validated.ClientID,
		UserID:   validated.UserID,
		Exp:      token.AccessTokenExpiresAt.Unix(),
	}
}

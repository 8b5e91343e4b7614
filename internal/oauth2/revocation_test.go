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
	"testing"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
)

// TestPurpose: Validates that revoking a token makes it immediately fail validation and introspect inactive.
// Scope: Unit Test
// Security: Revocation visibility (RFC 7009)
func TestOAuth2_RevocationService_Revoke_VisibleImmediately(t *testing.T) {
	tokenRepo := NewMockTokenRepo()
	blacklistRepo := NewMockBlacklistRepo()
	validator := NewValidator(tokenRepo, blacklistRepo)
	s := NewRevocationService(tokenRepo, blacklistRepo, validator, audit.NewSlogLogger())
	ctx := context.Background()

	tokenRepo.Create(ctx, &Token{
		AccessToken: "AT1", RefreshToken: "RT1", ClientID: "client-1", UserID: "user-1",
		Scope: "memories:read", AccessTokenExpiresAt: time.Now().Add(time.Hour),
		RefreshTokenExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	})

	if _, err := validator.ValidateAccessToken(ctx, "AT1"); err != nil {
		t.Fatalf("expected token to validate before revocation: %v", err)
	}

	if err := s.Revoke(ctx, "AT1", "user_revoked"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	if _, err := validator.ValidateAccessToken(ctx, "AT1"); err != ErrTokenRevoked {
		t.Fatalf("expected ErrTokenRevoked after revocation, got %v", err)
	}

	result := s.Introspect(ctx, "AT1")
	if result.Active {
		t.Error("expected introspection to report inactive after revocation")
	}
}

// TestPurpose: Validates that revoking an unknown token is a silent, idempotent no-op.
// Scope: Unit Test
// Security: Revocation endpoint information hiding (RFC 7009 §2.2)
func TestOAuth2_RevocationService_Revoke_UnknownTokenIsNoOp(t *testing.T) {
	tokenRepo := NewMockTokenRepo()
	blacklistRepo := NewMockBlacklistRepo()
	validator := NewValidator(tokenRepo, blacklistRepo)
	s := NewRevocationService(tokenRepo, blacklistRepo, validator, audit.NewSlogLogger())

	if err := s.Revoke(context.Background(), "does-not-exist", "user_revoked"); err != nil {
		t.Fatalf("expected nil error for unknown token, got %v", err)
	}
}

// TestPurpose: Validates that introspecting a live token reveals scope/client/user without leaking on failure.
// Scope: Unit Test
func TestOAuth2_RevocationService_Introspect_ActiveToken(t *testing.T) {
	tokenRepo := NewMockTokenRepo()
	blacklistRepo := NewMockBlacklistRepo()
	validator := NewValidator(tokenRepo, blacklistRepo)
	s := NewRevocationService(tokenRepo, blacklistRepo, validator, audit.NewSlogLogger())
	ctx := context.Background()

	tokenRepo.Create(ctx, &Token{
		AccessToken: "AT1", RefreshToken: "RT1", ClientID: "client-1", UserID: "user-1",
		Scope: "memories:read", AccessTokenExpiresAt: time.Now().Add(time.Hour),
		RefreshTokenExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	})

	result := s.Introspect(ctx, "AT1")
	if !result.Active {
		t.Fatal("expected active introspection result")
	}
	if result.ClientID != "client-1" || result.UserID != "user-1" || result.Scope != "memories:read" {
		t.Errorf("unexpected introspection result: %+v", result)
	}
}

// TestPurpose: Validates that introspecting an expired token reports inactive without distinguishing the failure reason.
// Scope: Unit Test
func TestOAuth2_RevocationService_Introspect_ExpiredToken(t *testing.T) {
	tokenRepo := NewMockTokenRepo()
	blacklistRepo := NewMockBlacklistRepo()
	validator := NewValidator(tokenRepo, blacklistRepo)
	s := NewRevocationService(tokenRepo, blacklistRepo, validator, audit.NewSlogLogger())
	ctx := context.Background()

	tokenRepo.Create(ctx, &Token{
		AccessToken: "AT1", RefreshToken: "RT1", ClientID: "client-1", UserID: "user-1",
		Scope: "memories:read", AccessTokenExpiresAt: time.Now().Add(-time.Minute),
		RefreshTokenExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	})

	result := s.Introspect(ctx, "AT1")
	if result.Active {
		t.Error("expected inactive introspection result for expired token")
	}
}

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

// AuthorizeRequest carries the query parameters of GET /authorize, and the
// same fields as re-posted by the consent form.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeService implements the Authorization Code Issuer state machine:
// received -> validated -> authenticated -> consented -> issued, or a
// terminal denied/error.
type AuthorizeService struct {
	clientRepo  ClientRepository
	codeRepo    AuthorizationCodeRepository
	auditLogger audit.Logger
	codeTTL     time.Duration
}

// NewAuthorizeService creates a new AuthorizeService. codeTTL must not
// exceed 10 minutes.
func NewAuthorizeService(clientRepo ClientRepository, codeRepo AuthorizationCodeRepository, auditLogger audit.Logger, codeTTL time.Duration) *AuthorizeService {
	return &AuthorizeService{
		clientRepo:  clientRepo,
		codeRepo:    codeRepo,
		auditLogger: auditLogger,
		codeTTL:     codeTTL,
	}
}

// ValidateAuthorizeRequest runs the "validated" transition in a strict
// order. Failures discovered before the redirect_uri has been confirmed
// trusted are still delivered as redirects to the request's own
// redirect_uri; only the redirect_uri mismatch itself is a direct 400,
// since redirecting there would hand the error to an untrusted party.
func (s *AuthorizeService) ValidateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*Client, error) {
	if req.ResponseType != "code" {
		return nil, NewRedirectError(ErrUnsupportedResponse, "response_type must be 'code'").WithState(req.State)
	}

	client, err := s.clientRepo.GetByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, NewRedirectError(ErrInvalidClient, "unknown client_id").WithState(req.State)
	}

	if !client.ValidateRedirectURI(req.RedirectURI) {
		return nil, NewError(ErrInvalidRequest, "redirect_uri is not registered for this client")
	}

	if !client.ValidateScope(req.Scope) {
		return nil, NewRedirectError(ErrInvalidScope, "requested scope exceeds client's allowed scopes").WithState(req.State)
	}

	if req.CodeChallenge == "" {
		return nil, NewRedirectError(ErrInvalidRequest, "code_challenge is required").WithState(req.State)
	}
	if req.CodeChallengeMethod == "" {
		req.CodeChallengeMethod = CodeChallengeMethodS256
	}
	if req.CodeChallengeMethod != CodeChallengeMethodS256 {
		return nil, NewRedirectError(ErrInvalidRequest, "code_challenge_method must be S256").WithState(req.State)
	}

	return client, nil
}

// IssueCode implements the "issued" transition: mints and persists a
// single-use authorization code bound to the validated request and the
// authenticated, consenting user.
func (s *AuthorizeService) IssueCode(ctx context.Context, req *AuthorizeRequest, userID string) (*AuthorizationCode, error) {
	code := &AuthorizationCode{
		ID:                  generateID(),
		Code:                generateAuthorizationCode(),
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           time.Now().Add(s.codeTTL),
		CreatedAt:           time.Now(),
	}

	if err := s.codeRepo.Create(ctx, code); err != nil {
		return nil, NewError(ErrServerError, "failed to persist authorization code")
	}

	return code, nil
}

// Deny records a consent denial and returns the redirect error for the
// user-denied transition.
func (s *AuthorizeService) Deny(ctx context.Context, req *AuthorizeRequest, userID string) error {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentDenied,
		ActorID:  userID,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{audit.AttrClientID: req.ClientID, audit.AttrScope: req.Scope},
	})
	return NewRedirectError(ErrAccessDenied, "user denied the authorization request").WithState(req.State)
}

// LogConsentGranted records the consent-granted audit event once IssueCode
// has succeeded.
func (s *AuthorizeService) LogConsentGranted(ctx context.Context, req *AuthorizeRequest, userID string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentGranted,
		ActorID:  userID,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{audit.AttrClientID: req.ClientID, audit.AttrScope: req.Scope},
	})
}

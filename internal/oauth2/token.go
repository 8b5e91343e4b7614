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

// TokenRequest represents a POST /token form body.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse is the JSON body returned on a successful token request.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenService implements the Token Issuer component.
type TokenService struct {
	clientRepo  ClientRepository
	codeRepo    AuthorizationCodeRepository
	tokenRepo   TokenRepository
	auditLogger audit.Logger

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewTokenService creates a new TokenService.
func NewTokenService(clientRepo ClientRepository, codeRepo AuthorizationCodeRepository, tokenRepo TokenRepository, auditLogger audit.Logger, accessTokenTTL, refreshTokenTTL time.Duration) *TokenService {
	return &TokenService{
		clientRepo:      clientRepo,
		codeRepo:        codeRepo,
		tokenRepo:       tokenRepo,
		auditLogger:     auditLogger,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// authenticateClient is the common pre-check shared by every grant type:
// resolve client_id, require client_secret for confidential clients
// (every client is confidential — see Client), constant-time compare.
func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.clientRepo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}

	if !constantTimeEqual(HashClientSecret(clientSecret), client.ClientSecretHash) {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}

	return client, nil
}

// Exchange dispatches to the grant-specific handler, or fails with
// unsupported_grant_type for anything else.
func (s *TokenService) Exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case "authorization_code":
		return s.exchangeAuthorizationCode(ctx, req)
	case "refresh_token":
		return s.refreshAccessToken(ctx, req)
	default:
		return nil, NewError(ErrUnsupportedGrantType, "unsupported grant_type")
	}
}

// exchangeAuthorizationCode implements the authorization_code grant: code
// consumption is atomic (AuthorizationCodeRepository's ConsumeByCode via
// DELETE ... RETURNING), so concurrent exchanges of the same code resolve
// to exactly one winner.
func (s *TokenService) exchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if req.Code == "" || req.RedirectURI == "" || req.CodeVerifier == "" {
		return nil, NewError(ErrInvalidRequest, "code, redirect_uri, and code_verifier are required")
	}

	code, err := s.codeRepo.ConsumeByCode(ctx, req.Code, client.ClientID)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "authorization code not found or already used")
	}

	if code.IsExpired() {
		return nil, NewError(ErrInvalidGrant, "authorization code expired")
	}

	if code.RedirectURI != req.RedirectURI {
		return nil, NewError(ErrInvalidGrant, "redirect_uri mismatch")
	}

	if !validatePKCE(code.CodeChallenge, req.CodeVerifier) {
		return nil, NewError(ErrInvalidGrant, "invalid code_verifier")
	}

	now := time.Now()
	token := &Token{
		ID:                    generateID(),
		AccessToken:           generateToken(),
		RefreshToken:          generateToken(),
		ClientID:              client.ClientID,
		UserID:                code.UserID,
		Scope:                 code.Scope,
		AccessTokenExpiresAt:  now.Add(s.accessTokenTTL),
		RefreshTokenExpiresAt: now.Add(s.refreshTokenTTL),
		CreatedAt:             now,
	}

	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, NewError(ErrServerError, "failed to issue token")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  code.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{audit.AttrClientID: client.ClientID, audit.AttrScope: token.Scope},
	})

	return &TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTokenTTL.Seconds()),
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	}, nil
}

// refreshAccessToken implements the refresh_token grant: rotation
// overwrites both the access and refresh token strings in a single
// conditional UPDATE, so the replaced refresh token never authenticates
// again.
func (s *TokenService) refreshAccessToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if req.RefreshToken == "" {
		return nil, NewError(ErrInvalidRequest, "refresh_token is required")
	}

	existing, err := s.tokenRepo.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil || existing.IsRevoked || existing.IsRefreshExpired() || existing.ClientID != client.ClientID {
		return nil, NewError(ErrInvalidGrant, "refresh token is invalid, expired, or revoked")
	}

	newScope := existing.Scope
	if req.Scope != "" {
		if !isSubsetScope(req.Scope, existing.Scope) {
			return nil, NewError(ErrInvalidScope, "requested scope exceeds the original grant")
		}
		newScope = req.Scope
	}

	now := time.Now()
	newAccessToken := generateToken()
	newRefreshToken := generateToken()

	rotated, err := s.tokenRepo.Rotate(ctx, req.RefreshToken, newAccessToken, newRefreshToken, newScope, now.Add(s.accessTokenTTL), now.Add(s.refreshTokenTTL))
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "refresh token is invalid, expired, or revoked")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRefreshed,
		ActorID:  rotated.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{audit.AttrClientID: client.ClientID, audit.AttrScope: rotated.Scope},
	})

	return &TokenResponse{
		AccessToken:  rotated.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTokenTTL.Seconds()),
		RefreshToken: rotated.RefreshToken,
		Scope:        rotated.Scope,
	}, nil
}

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

// ClientService implements the confidential-client registry. Every
// mutating operation is admin-only at the transport layer; the service
// itself enforces data invariants, uniqueness, and the scope policy
// (validScopes is the authoritative set a client may draw from;
// requiredScopes, if non-empty, is the minimum set every client must
// request).
type ClientService struct {
	repo           ClientRepository
	auditLogger    audit.Logger
	validScopes    []string
	requiredScopes []string
}

// NewClientService creates a new ClientService. validScopes is the
// authoritative set of scope tokens a client's AllowedScopes may be drawn
// from; an empty validScopes disables the check (any scope is accepted).
// requiredScopes is the minimum set every client's AllowedScopes must
// include.
func NewClientService(repo ClientRepository, auditLogger audit.Logger, validScopes, requiredScopes []string) *ClientService {
	return &ClientService{repo: repo, auditLogger: auditLogger, validScopes: validScopes, requiredScopes: requiredScopes}
}

// validateScopePolicy checks requested against the authoritative
// validScopes set and ensures every requiredScopes token is present.
func (s *ClientService) validateScopePolicy(requested []string) error {
	if len(s.validScopes) > 0 {
		allowed := make(map[string]bool, len(s.validScopes))
		for _, sc := range s.validScopes {
			allowed[sc] = true
		}
		for _, sc := range requested {
			if !allowed[sc] {
				return NewError(ErrInvalidRequest, "allowed_scopes contains an unrecognized scope: "+sc)
			}
		}
	}

	if len(s.requiredScopes) > 0 {
		present := make(map[string]bool, len(requested))
		for _, sc := range requested {
			present[sc] = true
		}
		for _, sc := range s.requiredScopes {
			if !present[sc] {
				return NewError(ErrInvalidRequest, "allowed_scopes must include required scope: "+sc)
			}
		}
	}

	return nil
}

// ClientMetadata is the admin-supplied shape for registering a client.
type ClientMetadata struct {
	ClientName    string
	RedirectURIs  []string
	AllowedScopes []string
}

// Register creates a new confidential client, returning its client_id and
// the one-time plaintext client_secret. Any failure to persist the client,
// including a client_id collision on the uniqueness constraint (practically
// unreachable given the entropy of generateID), fails with a server_error
// whose description is "client_registration_failed".
func (s *ClientService) Register(ctx context.Context, meta ClientMetadata) (clientID, clientSecret string, err error) {
	if len(meta.RedirectURIs) == 0 {
		return "", "", NewError(ErrInvalidRequest, "redirect_uris must not be empty")
	}
	if len(meta.AllowedScopes) == 0 {
		return "", "", NewError(ErrInvalidRequest, "allowed_scopes must not be empty")
	}
	if err := s.validateScopePolicy(meta.AllowedScopes); err != nil {
		return "", "", err
	}

	clientID = generateID()
	clientSecret = GenerateClientSecret()

	client := &Client{
		ID:               generateID(),
		ClientID:         clientID,
		ClientSecretHash: HashClientSecret(clientSecret),
		ClientName:       meta.ClientName,
		RedirectURIs:     meta.RedirectURIs,
		AllowedScopes:    meta.AllowedScopes,
		IsConfidential:   true,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	if err := s.repo.Create(ctx, client); err != nil {
		return "", "", NewError(ErrServerError, "client_registration_failed")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientCreated,
		ActorID:  audit.ActorAdmin,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{audit.AttrClientID: clientID},
	})

	return clientID, clientSecret, nil
}

// Get retrieves a client by client_id.
func (s *ClientService) Get(ctx context.Context, clientID string) (*Client, error) {
	return s.repo.GetByClientID(ctx, clientID)
}

// List retrieves all registered clients.
func (s *ClientService) List(ctx context.Context) ([]*Client, error) {
	return s.repo.List(ctx)
}

// Authenticate verifies a client_id/client_secret pair in constant time.
// Every client is confidential, so an empty or mismatched secret always
// fails.
func (s *ClientService) Authenticate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.repo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}

	if !constantTimeEqual(HashClientSecret(clientSecret), client.ClientSecretHash) {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}

	return client, nil
}

// Update replaces a client's mutable metadata.
func (s *ClientService) Update(ctx context.Context, clientID string, meta ClientMetadata) (*Client, error) {
	client, err := s.repo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, NewError(ErrInvalidRequest, "client not found")
	}

	if len(meta.RedirectURIs) == 0 {
		return nil, NewError(ErrInvalidRequest, "redirect_uris must not be empty")
	}
	if len(meta.AllowedScopes) == 0 {
		return nil, NewError(ErrInvalidRequest, "allowed_scopes must not be empty")
	}
	if err := s.validateScopePolicy(meta.AllowedScopes); err != nil {
		return nil, err
	}

	client.ClientName = meta.ClientName
	client.RedirectURIs = meta.RedirectURIs
	client.AllowedScopes = meta.AllowedScopes
	client.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, NewError(ErrServerError, "failed to update client")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientUpdated,
		ActorID:  audit.ActorAdmin,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{audit.AttrClientID: clientID},
	})

	return client, nil
}

// Delete removes a client registration.
func (s *ClientService) Delete(ctx context.Context, clientID string) error {
	if err := s.repo.Delete(ctx, clientID); err != nil {
		return NewError(ErrServerError, "failed to delete client")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientDeleted,
		ActorID:  audit.ActorAdmin,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{audit.AttrClientID: clientID},
	})

	return nil
}

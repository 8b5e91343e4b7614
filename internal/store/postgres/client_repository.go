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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// ClientRepository implements oauth2.ClientRepository against PostgreSQL.
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, client *oauth2.Client) error {
	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("failed to marshal redirect URIs: %w", err)
	}

	allowedScopes, err := json.Marshal(client.AllowedScopes)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed scopes: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO oauth2_clients (
			id, client_id, client_secret_hash, client_name,
			redirect_uris, allowed_scopes, is_confidential, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		client.ID, client.ClientID, client.ClientSecretHash, client.ClientName,
		redirectURIs, allowedScopes, client.IsConfidential, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*oauth2.Client, error) {
	var client oauth2.Client
	var redirectURIsJSON, allowedScopesJSON []byte
	var deletedAt sql.NullTime

	err := row.Scan(
		&client.ID, &client.ClientID, &client.ClientSecretHash, &client.ClientName,
		&redirectURIsJSON, &allowedScopesJSON, &client.IsConfidential,
		&client.CreatedAt, &client.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if err := json.Unmarshal(redirectURIsJSON, &client.RedirectURIs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal redirect URIs: %w", err)
	}
	if err := json.Unmarshal(allowedScopesJSON, &client.AllowedScopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed scopes: %w", err)
	}
	if deletedAt.Valid {
		client.DeletedAt = &deletedAt.Time
	}

	return &client, nil
}

func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, client_id, client_secret_hash, client_name,
			redirect_uris, allowed_scopes, is_confidential, created_at, updated_at, deleted_at
		FROM oauth2_clients
		WHERE client_id = $1 AND deleted_at IS NULL
	`, clientID)
	return scanClient(row)
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*oauth2.Client, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, client_id, client_secret_hash, client_name,
			redirect_uris, allowed_scopes, is_confidential, created_at, updated_at, deleted_at
		FROM oauth2_clients
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanClient(row)
}

func (r *ClientRepository) Update(ctx context.Context, client *oauth2.Client) error {
	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("failed to marshal redirect URIs: %w", err)
	}

	allowedScopes, err := json.Marshal(client.AllowedScopes)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed scopes: %w", err)
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients SET
			client_name = $2,
			redirect_uris = $3,
			allowed_scopes = $4,
			is_confidential = $5,
			updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
	`,
		client.ID, client.ClientName, redirectURIs, allowedScopes, client.IsConfidential, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}

	return nil
}

func (r *ClientRepository) Delete(ctx context.Context, clientID string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients SET deleted_at = $2
		WHERE client_id = $1 AND deleted_at IS NULL
	`, clientID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}

	return nil
}

func (r *ClientRepository) List(ctx context.Context) ([]*oauth2.Client, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, client_id, client_secret_hash, client_name,
			redirect_uris, allowed_scopes, is_confidential, created_at, updated_at, deleted_at
		FROM oauth2_clients
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []*oauth2.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return clients, nil
}

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

package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// RegisterClientRequest is the admin-supplied shape for registering a new
// OAuth2 client. Every client is confidential; there is no
// token_endpoint_auth_method choice.
type RegisterClientRequest struct {
	ClientName    string   `json:"client_name" binding:"required" example:"My Application"`
	RedirectURIs  []string `json:"redirect_uris" binding:"required" example:"[\"https://app.example.com/callback\"]"`
	AllowedScopes []string `json:"allowed_scopes" binding:"required" example:"[\"memories:read\"]"`
}

// RegisterClientResponse discloses the one-time plaintext client_secret.
type RegisterClientResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	ClientName   string `json:"client_name"`
}

// RegisterClient handles OAuth2 client registration.
// @Summary Register Client
// @Tags Admin
// @Accept json
// @Produce json
// @Security BasicAuth
// @Param request body RegisterClientRequest true "Client Data"
// @Success 201 {object} RegisterClientResponse
// @Failure 400 {object} map[string]string
// @Router /api/oauth/admin/clients [post]
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req RegisterClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clientID, clientSecret, err := h.clientService.Register(r.Context(), oauth2.ClientMetadata{
		ClientName:    req.ClientName,
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: req.AllowedScopes,
	})
	if err != nil {
		writeTokenError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, RegisterClientResponse{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		ClientName:   req.ClientName,
	})
}

// ListClients returns every registered client (secret hashes omitted).
// @Summary List Clients
// @Tags Admin
// @Produce json
// @Security BasicAuth
// @Success 200 {object} map[string]any
// @Router /api/oauth/admin/clients [get]
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clientService.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list clients")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"clients": sanitizeClients(clients),
		"total":   len(clients),
	})
}

// GetClient retrieves a single registered client by client_id.
// @Summary Get Client
// @Tags Admin
// @Produce json
// @Security BasicAuth
// @Param clientID path string true "Client ID"
// @Success 200 {object} oauth2.Client
// @Failure 404 {object} map[string]string
// @Router /api/oauth/admin/clients/{clientID} [get]
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	client, err := h.clientService.Get(r.Context(), clientID)
	if err != nil {
		respondError(w, http.StatusNotFound, "client not found")
		return
	}

	respondJSON(w, http.StatusOK, sanitizeClient(client))
}

// UpdateClient replaces a client's mutable metadata.
// @Summary Update Client
// @Tags Admin
// @Accept json
// @Produce json
// @Security BasicAuth
// @Param clientID path string true "Client ID"
// @Param request body RegisterClientRequest true "Client Data"
// @Success 200 {object} oauth2.Client
// @Failure 400 {object} map[string]string
// @Router /api/oauth/admin/clients/{clientID} [put]
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	var req RegisterClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client, err := h.clientService.Update(r.Context(), clientID, oauth2.ClientMetadata{
		ClientName:    req.ClientName,
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: req.AllowedScopes,
	})
	if err != nil {
		writeTokenError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sanitizeClient(client))
}

// DeleteClient removes a client registration.
// @Summary Delete Client
// @Tags Admin
// @Security BasicAuth
// @Param clientID path string true "Client ID"
// @Success 204 {string} string "No Content"
// @Router /api/oauth/admin/clients/{clientID} [delete]
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	if err := h.clientService.Delete(r.Context(), clientID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete client")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sanitizedClient is the wire shape for a Client with its secret hash
// stripped — the admin console never discloses it after registration.
type sanitizedClient struct {
	ID            string   `json:"id"`
	ClientID      string   `json:"client_id"`
	ClientName    string   `json:"client_name"`
	RedirectURIs  []string `json:"redirect_uris"`
	AllowedScopes []string `json:"allowed_scopes"`
}

func sanitizeClient(c *oauth2.Client) sanitizedClient {
	return sanitizedClient{
		ID:            c.ID,
		ClientID:      c.ClientID,
		ClientName:    c.ClientName,
		RedirectURIs:  c.RedirectURIs,
		AllowedScopes: c.AllowedScopes,
	}
}

func sanitizeClients(clients []*oauth2.Client) []sanitizedClient {
	out := make([]sanitizedClient, 0, len(clients))
	for _, c := range clients {
		out = append(out, sanitizeClient(c))
	}
	return out
}

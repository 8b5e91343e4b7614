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
	"log/slog"
	"net/http"
	"net/url"

	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// Authorize implements the GET /authorize leg of the Authorization Code
// Issuer: validate, then render the consent page for the
// already-authenticated user. A validation failure that passes the
// redirect_uri check is delivered as a redirect per RFC 6749 §4.1.2.1; a
// redirect_uri mismatch itself is a direct 400 to prevent open redirects.
// @Summary OAuth2 Authorize Endpoint
// @Tags OAuth2
// @Produce html
// @Param client_id query string true "Client ID"
// @Param redirect_uri query string true "Redirect URI"
// @Param response_type query string true "Response Type (must be 'code')"
// @Param scope query string false "Scopes"
// @Param state query string true "Opaque client state"
// @Param code_challenge query string true "PKCE challenge"
// @Param code_challenge_method query string false "PKCE method (S256)"
// @Success 200 {string} string "Consent page"
// @Router /api/oauth/authorize [get]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := &oauth2.AuthorizeRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	}

	client, err := h.authorizeService.ValidateAuthorizeRequest(r.Context(), req)
	if err != nil {
		h.handleAuthorizeError(w, r, req, err)
		return
	}

	if err := h.consentTemplate.Render(w, client, req); err != nil {
		slog.ErrorContext(r.Context(), "failed to render consent page", "error", err)
		respondOAuthError(w, http.StatusInternalServerError, oauth2.NewError(oauth2.ErrServerError, "failed to render consent page"))
	}
}

// Consent implements POST /consent: the user's submitted decision from the
// rendered consent form.
// @Summary OAuth2 Consent Decision
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce html
// @Success 302 {string} string "Redirects to redirect_uri with code or error"
// @Router /api/oauth/consent [post]
func (h *Handler) Consent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, http.StatusBadRequest, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid consent submission"))
		return
	}

	req := &oauth2.AuthorizeRequest{
		ClientID:            r.Form.Get("client_id"),
		RedirectURI:         r.Form.Get("redirect_uri"),
		ResponseType:        r.Form.Get("response_type"),
		Scope:               r.Form.Get("scope"),
		State:               r.Form.Get("state"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: r.Form.Get("code_challenge_method"),
	}

	userID := GetUserID(r.Context())

	if _, err := h.authorizeService.ValidateAuthorizeRequest(r.Context(), req); err != nil {
		h.handleAuthorizeError(w, r, req, err)
		return
	}

	if r.Form.Get("decision") != "approve" {
		err := h.authorizeService.Deny(r.Context(), req, userID)
		h.handleAuthorizeError(w, r, req, err)
		return
	}

	code, err := h.authorizeService.IssueCode(r.Context(), req, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue authorization code", "error", err)
		http.Redirect(w, r, redirectWithParams(req.RedirectURI, map[string]string{
			"error": oauth2.ErrServerError,
			"state": req.State,
		}), http.StatusFound)
		return
	}
	h.authorizeService.LogConsentGranted(r.Context(), req, userID)

	http.Redirect(w, r, redirectWithParams(req.RedirectURI, map[string]string{
		"code":  code.Code,
		"state": req.State,
	}), http.StatusFound)
}

// handleAuthorizeError delivers a validation or consent-path error either
// as a redirect to redirect_uri (the common case) or as a direct response
// when the error itself reports Redirect == false, per the Error.Redirect
// field set at construction (oauth2.NewError vs oauth2.NewRedirectError).
func (h *Handler) handleAuthorizeError(w http.ResponseWriter, r *http.Request, req *oauth2.AuthorizeRequest, err error) {
	oerr, ok := err.(*oauth2.Error)
	if !ok {
		respondOAuthError(w, http.StatusInternalServerError, oauth2.NewError(oauth2.ErrServerError, "internal server error"))
		return
	}

	slog.WarnContext(r.Context(), "authorize request rejected",
		"error", oerr.Code,
		"client_id", req.ClientID,
		"redirect_uri", req.RedirectURI,
	)

	if !oerr.Redirect {
		status := http.StatusBadRequest
		respondOAuthError(w, status, oerr)
		return
	}

	http.Redirect(w, r, redirectWithParams(req.RedirectURI, map[string]string{
		"error":             oerr.Code,
		"error_description": oerr.Description,
		"state":             oerr.State,
	}), http.StatusFound)
}

// Token implements POST /token: the Token Issuer component.
// @Summary OAuth2 Token Endpoint
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "authorization_code or refresh_token"
// @Param code formData string false "Authorization code"
// @Param redirect_uri formData string false "Redirect URI"
// @Param client_id formData string false "Client ID (if not Basic Auth)"
// @Param client_secret formData string false "Client secret (if not Basic Auth)"
// @Param code_verifier formData string false "PKCE verifier"
// @Param refresh_token formData string false "Refresh token"
// @Param scope formData string false "Requested scope (narrowing only, refresh grant)"
// @Success 200 {object} oauth2.TokenResponse
// @Failure 400 {object} oauth2.Error
// @Failure 401 {object} oauth2.Error
// @Router /api/oauth/token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, http.StatusBadRequest, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	clientID := r.Form.Get("client_id")
	clientSecret := r.Form.Get("client_secret")
	if clientID == "" {
		if username, password, ok := r.BasicAuth(); ok {
			clientID = username
			clientSecret = password
		}
	}

	req := &oauth2.TokenRequest{
		GrantType:    r.Form.Get("grant_type"),
		Code:         r.Form.Get("code"),
		RedirectURI:  r.Form.Get("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CodeVerifier: r.Form.Get("code_verifier"),
		RefreshToken: r.Form.Get("refresh_token"),
		Scope:        r.Form.Get("scope"),
	}

	resp, err := h.tokenService.Exchange(r.Context(), req)
	if err != nil {
		slog.WarnContext(r.Context(), "token request failed", "error", err, "grant_type", req.GrantType)
		writeTokenError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	respondJSON(w, http.StatusOK, resp)
}

// revokeRequest is the JSON body accepted by POST /tokens/revoke.
type revokeRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// introspectRequest is the JSON body accepted by POST /tokens/introspect.
type introspectRequest struct {
	Token string `json:"token"`
}

// Revoke implements POST /tokens/revoke. Per RFC 7009 §2.2, the response
// is 200 OK regardless of whether the token was valid, to avoid
// disclosing token state to an unauthenticated caller.
// @Summary Revoke Token
// @Tags OAuth2
// @Accept json
// @Param request body revokeRequest true "Token to revoke"
// @Success 200 {string} string "OK"
// @Router /api/oauth/tokens/revoke [post]
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondOAuthError(w, http.StatusBadRequest, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	if req.Token == "" {
		respondOAuthError(w, http.StatusBadRequest, oauth2.NewError(oauth2.ErrInvalidRequest, "missing token"))
		return
	}

	_ = h.revocationService.Revoke(r.Context(), req.Token, req.Reason)

	w.WriteHeader(http.StatusOK)
}

// Introspect implements POST /tokens/introspect.
// @Summary Introspect Token
// @Tags OAuth2
// @Accept json
// @Produce json
// @Param request body introspectRequest true "Token to introspect"
// @Success 200 {object} oauth2.IntrospectionResult
// @Router /api/oauth/tokens/introspect [post]
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	var req introspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, oauth2.IntrospectionResult{Active: false})
		return
	}

	if req.Token == "" {
		respondJSON(w, http.StatusOK, oauth2.IntrospectionResult{Active: false})
		return
	}

	respondJSON(w, http.StatusOK, h.revocationService.Introspect(r.Context(), req.Token))
}

// writeTokenError maps a TokenService error to the RFC 6749 §5.2 status
// code for the token endpoint (400 for most, 401 for invalid_client).
func writeTokenError(w http.ResponseWriter, err error) {
	oerr, ok := err.(*oauth2.Error)
	if !ok {
		respondOAuthError(w, http.StatusInternalServerError, oauth2.NewError(oauth2.ErrServerError, "internal server error"))
		return
	}

	status := http.StatusBadRequest
	switch oerr.Code {
	case oauth2.ErrInvalidClient:
		status = http.StatusUnauthorized
	case oauth2.ErrServerError:
		status = http.StatusInternalServerError
	}
	respondOAuthError(w, status, oerr)
}

// redirectWithParams appends query parameters to a redirect_uri that has
// already been confirmed to exactly match one registered for the client.
func redirectWithParams(rawURL string, params map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

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
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/opentrusty/opentrusty/internal/oauth2"
)

func pkceChallengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// registerAndLoginUser drives registration + login through HTTP and returns
// the session cookie needed to reach /authorize.
func registerAndLoginUser(t *testing.T, router http.Handler, email, username, password string) *http.Cookie {
	t.Helper()

	doJSON(t, router, http.MethodPost, "/api/auth/register", RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
	})
	loginRec := doJSON(t, router, http.MethodPost, "/api/auth/login", LoginRequest{Email: email, Password: password})
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", loginRec.Code, loginRec.Body.String())
	}
	for _, c := range loginRec.Result().Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("expected session_id cookie from login")
	return nil
}

// TestPurpose: Validates the full authorize -> consent(approve) -> token exchange happy path, end to end over HTTP.
// Scope: Unit Test
func TestOAuth2Flow_AuthorizeConsentToken_HappyPath(t *testing.T) {
	h := newTestHarness()
	router := NewRouter(h.handler, NewRateLimiter(1000, 1000))

	clientRec := doAdminJSON(t, router, http.MethodPost, "/api/oauth/admin/clients/", RegisterClientRequest{
		ClientName:    "Flow App",
		RedirectURIs:  []string{"https://flow.example.com/callback"},
		AllowedScopes: []string{"memories:read", "memories:write"},
	})
	var client RegisterClientResponse
	json.Unmarshal(clientRec.Body.Bytes(), &client)

	cookie := registerAndLoginUser(t, router, "grace@example.com", "grace", "a-decent-password")

	verifier := "a-sufficiently-long-random-code-verifier-value"
	challenge := pkceChallengeFor(verifier)

	authorizeQuery := url.Values{
		"response_type":         {"code"},
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://flow.example.com/callback"},
		"scope":                 {"memories:read"},
		"state":                 {"xyz-state"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}

	authorizeReq := httptest.NewRequest(http.MethodGet, "/api/oauth/authorize?"+authorizeQuery.Encode(), nil)
	authorizeReq.AddCookie(cookie)
	authorizeRec := httptest.NewRecorder()
	router.ServeHTTP(authorizeRec, authorizeReq)

	if authorizeRec.Code != http.StatusOK {
		t.Fatalf("expected 200 rendering consent page, got %d: %s", authorizeRec.Code, authorizeRec.Body.String())
	}
	if !containsAll(authorizeRec.Body.String(), "Flow App", challenge) {
		t.Fatalf("consent page missing expected fields: %s", authorizeRec.Body.String())
	}

	form := url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://flow.example.com/callback"},
		"response_type":         {"code"},
		"scope":                 {"memories:read"},
		"state":                 {"xyz-state"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"decision":              {"approve"},
	}
	consentReq := httptest.NewRequest(http.MethodPost, "/api/oauth/consent", strings.NewReader(form.Encode()))
	consentReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	consentReq.Header.Set("X-CSRF-Token", "test-csrf-token")
	consentReq.AddCookie(cookie)
	consentRec := httptest.NewRecorder()
	router.ServeHTTP(consentRec, consentReq)

	if consentRec.Code != http.StatusFound {
		t.Fatalf("expected 302 redirect after consent, got %d: %s", consentRec.Code, consentRec.Body.String())
	}

	location, err := url.Parse(consentRec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect location: %v", err)
	}
	code := location.Query().Get("code")
	if code == "" {
		t.Fatalf("expected an authorization code in redirect, got %s", location.String())
	}
	if location.Query().Get("state") != "xyz-state" {
		t.Errorf("expected state to be echoed, got %q", location.Query().Get("state"))
	}

	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://flow.example.com/callback"},
		"client_id":     {client.ClientID},
		"client_secret": {client.ClientSecret},
		"code_verifier": {verifier},
	}
	tokenReq := httptest.NewRequest(http.MethodPost, "/api/oauth/token", strings.NewReader(tokenForm.Encode()))
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenRec := httptest.NewRecorder()
	router.ServeHTTP(tokenRec, tokenReq)

	if tokenRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from token endpoint, got %d: %s", tokenRec.Code, tokenRec.Body.String())
	}

	var tokenResp oauth2.TokenResponse
	if err := json.Unmarshal(tokenRec.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if tokenResp.AccessToken == "" || tokenResp.RefreshToken == "" {
		t.Fatal("expected non-empty access and refresh tokens")
	}

	// Reusing the same authorization code must now fail (single-use).
	replayRec := httptest.NewRecorder()
	replayReq := httptest.NewRequest(http.MethodPost, "/api/oauth/token", strings.NewReader(tokenForm.Encode()))
	replayReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(replayRec, replayReq)
	if replayRec.Code == http.StatusOK {
		t.Fatal("expected replaying a consumed authorization code to fail")
	}

	// The minted access token authenticates a protected account request.
	meReq := httptest.NewRequest(http.MethodGet, "/api/oauth/account/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	meRec := httptest.NewRecorder()
	router.ServeHTTP(meRec, meReq)
	if meRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from account/me with valid bearer token, got %d", meRec.Code)
	}

	// Introspection reports the token active.
	introspectBody, _ := json.Marshal(map[string]string{"token": tokenResp.AccessToken})
	introspectReq := httptest.NewRequest(http.MethodPost, "/api/oauth/tokens/introspect", strings.NewReader(string(introspectBody)))
	introspectReq.Header.Set("Content-Type", "application/json")
	introspectRec := httptest.NewRecorder()
	router.ServeHTTP(introspectRec, introspectReq)

	var introspectResult oauth2.IntrospectionResult
	json.Unmarshal(introspectRec.Body.Bytes(), &introspectResult)
	if !introspectResult.Active {
		t.Fatal("expected introspection to report the fresh token active")
	}

	// Revocation, then the token must no longer validate.
	revokeBody, _ := json.Marshal(map[string]string{"token": tokenResp.AccessToken})
	revokeReq := httptest.NewRequest(http.MethodPost, "/api/oauth/tokens/revoke", strings.NewReader(string(revokeBody)))
	revokeReq.Header.Set("Content-Type", "application/json")
	revokeRec := httptest.NewRecorder()
	router.ServeHTTP(revokeRec, revokeReq)
	if revokeRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from revoke, got %d", revokeRec.Code)
	}

	meAfterRevokeReq := httptest.NewRequest(http.MethodGet, "/api/oauth/account/me", nil)
	meAfterRevokeReq.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	meAfterRevokeRec := httptest.NewRecorder()
	router.ServeHTTP(meAfterRevokeRec, meAfterRevokeReq)
	if meAfterRevokeRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revocation, got %d", meAfterRevokeRec.Code)
	}
}

// TestPurpose: Validates that a denied consent redirects with access_denied and issues no code.
// Scope: Unit Test
func TestOAuth2Flow_Consent_Deny(t *testing.T) {
	h := newTestHarness()
	router := NewRouter(h.handler, NewRateLimiter(1000, 1000))

	clientRec := doAdminJSON(t, router, http.MethodPost, "/api/oauth/admin/clients/", RegisterClientRequest{
		ClientName:    "Deny App",
		RedirectURIs:  []string{"https://deny.example.com/callback"},
		AllowedScopes: []string{"memories:read"},
	})
	var client RegisterClientResponse
	json.Unmarshal(clientRec.Body.Bytes(), &client)

	cookie := registerAndLoginUser(t, router, "heidi@example.com", "heidi", "a-decent-password")

	form := url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://deny.example.com/callback"},
		"response_type":         {"code"},
		"scope":                 {"memories:read"},
		"state":                 {"deny-state"},
		"code_challenge":        {"some-challenge-value-1234567890123"},
		"code_challenge_method": {"S256"},
		"decision":              {"deny"},
	}
	consentReq := httptest.NewRequest(http.MethodPost, "/api/oauth/consent", strings.NewReader(form.Encode()))
	consentReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	consentReq.Header.Set("X-CSRF-Token", "test-csrf-token")
	consentReq.AddCookie(cookie)
	consentRec := httptest.NewRecorder()
	router.ServeHTTP(consentRec, consentReq)

	if consentRec.Code != http.StatusFound {
		t.Fatalf("expected 302 redirect on deny, got %d", consentRec.Code)
	}
	location, err := url.Parse(consentRec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect location: %v", err)
	}
	if location.Query().Get("error") != oauth2.ErrAccessDenied {
		t.Errorf("expected access_denied error, got %q", location.Query().Get("error"))
	}
	if location.Query().Get("code") != "" {
		t.Error("a denied consent must never carry an authorization code")
	}
}

// TestPurpose: Validates that an unregistered redirect_uri is rejected directly (400), not as a redirect, to prevent open redirects.
// Scope: Unit Test
func TestOAuth2Flow_Authorize_RedirectURIMismatch(t *testing.T) {
	h := newTestHarness()
	router := NewRouter(h.handler, NewRateLimiter(1000, 1000))

	clientRec := doAdminJSON(t, router, http.MethodPost, "/api/oauth/admin/clients/", RegisterClientRequest{
		ClientName:    "Mismatch App",
		RedirectURIs:  []string{"https://mismatch.example.com/callback"},
		AllowedScopes: []string{"memories:read"},
	})
	var client RegisterClientResponse
	json.Unmarshal(clientRec.Body.Bytes(), &client)

	cookie := registerAndLoginUser(t, router, "ivan@example.com", "ivan", "a-decent-password")

	query := url.Values{
		"response_type":         {"code"},
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://attacker.example.com/callback"},
		"scope":                 {"memories:read"},
		"state":                 {"s"},
		"code_challenge":        {"challengechallengechallenge"},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/oauth/authorize?"+query.Encode(), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for redirect_uri mismatch (no redirect), got %d", rec.Code)
	}
	if rec.Header().Get("Location") != "" {
		t.Error("a redirect_uri mismatch must never redirect anywhere")
	}
}

// TestPurpose: Validates that a confidential client authenticating with the wrong secret is rejected invalid_client.
// Scope: Unit Test
func TestOAuth2Flow_Token_WrongClientSecret(t *testing.T) {
	h := newTestHarness()
	router := NewRouter(h.handler, NewRateLimiter(1000, 1000))

	clientRec := doAdminJSON(t, router, http.MethodPost, "/api/oauth/admin/clients/", RegisterClientRequest{
		ClientName:    "Secret App",
		RedirectURIs:  []string{"https://secret.example.com/callback"},
		AllowedScopes: []string{"memories:read"},
	})
	var client RegisterClientResponse
	json.Unmarshal(clientRec.Body.Bytes(), &client)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"whatever-code"},
		"redirect_uri":  {"https://secret.example.com/callback"},
		"client_id":     {client.ClientID},
		"client_secret": {"wrong-secret"},
		"code_verifier": {"verifier"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 invalid_client, got %d: %s", rec.Code, rec.Body.String())
	}

	var oerr oauth2.Error
	json.Unmarshal(rec.Body.Bytes(), &oerr)
	if oerr.Code != oauth2.ErrInvalidClient {
		t.Errorf("expected invalid_client, got %q", oerr.Code)
	}
}

func containsAll(haystack string, needles ...string) bool {
	for _, n := range needles {
		if !strings.Contains(haystack, n) {
			return false
		}
	}
	return true
}

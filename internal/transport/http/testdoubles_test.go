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
	"context"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oauth2"
	"github.com/opentrusty/opentrusty/internal/session"
)

// In-memory test doubles for every repository interface this package's
// handlers depend on, mirroring the pattern in session/service_test.go and
// oauth2/mocks_test.go. These can't be imported across packages since they
// live in _test.go files, so the http package carries its own copies.

type stubUserRepo struct {
	byID          map[string]*identity.User
	byEmail       map[string]*identity.User
	byUsername    map[string]*identity.User
	credentialsOf map[string]*identity.Credentials
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byID:          make(map[string]*identity.User),
		byEmail:       make(map[string]*identity.User),
		byUsername:    make(map[string]*identity.User),
		credentialsOf: make(map[string]*identity.Credentials),
	}
}

func (r *stubUserRepo) Create(ctx context.Context, u *identity.User) error {
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	r.byUsername[u.Username] = u
	return nil
}

func (r *stubUserRepo) AddCredentials(ctx context.Context, c *identity.Credentials) error {
	r.credentialsOf[c.UserID] = c
	return nil
}

func (r *stubUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (r *stubUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (r *stubUserRepo) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	u, ok := r.byUsername[username]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (r *stubUserRepo) Update(ctx context.Context, u *identity.User) error {
	r.byID[u.ID] = u
	return nil
}

func (r *stubUserRepo) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := r.byID[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (r *stubUserRepo) Delete(ctx context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

func (r *stubUserRepo) GetCredentials(ctx context.Context, userID string) (*identity.Credentials, error) {
	c, ok := r.credentialsOf[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return c, nil
}

func (r *stubUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	r.credentialsOf[userID] = &identity.Credentials{UserID: userID, PasswordHash: passwordHash}
	return nil
}

type stubSessionRepo struct {
	sessions map[string]*session.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*session.Session)}
}

func (r *stubSessionRepo) Create(ctx context.Context, s *session.Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *stubSessionRepo) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s, nil
}

func (r *stubSessionRepo) Update(ctx context.Context, s *session.Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *stubSessionRepo) Delete(ctx context.Context, sessionID string) error {
	delete(r.sessions, sessionID)
	return nil
}

func (r *stubSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *stubSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	for id, s := range r.sessions {
		if s.IsExpired() {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type stubClientRepo struct {
	clients map[string]*oauth2.Client
}

func newStubClientRepo() *stubClientRepo {
	return &stubClientRepo{clients: make(map[string]*oauth2.Client)}
}

func (r *stubClientRepo) Create(ctx context.Context, c *oauth2.Client) error {
	r.clients[c.ClientID] = c
	return nil
}

func (r *stubClientRepo) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, oauth2.ErrClientNotFound
	}
	return c, nil
}

func (r *stubClientRepo) GetByID(ctx context.Context, id string) (*oauth2.Client, error) {
	for _, c := range r.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, oauth2.ErrClientNotFound
}

func (r *stubClientRepo) Update(ctx context.Context, c *oauth2.Client) error {
	r.clients[c.ClientID] = c
	return nil
}

func (r *stubClientRepo) Delete(ctx context.Context, clientID string) error {
	delete(r.clients, clientID)
	return nil
}

func (r *stubClientRepo) List(ctx context.Context) ([]*oauth2.Client, error) {
	out := make([]*oauth2.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out, nil
}

type stubCodeRepo struct {
	codes map[string]*oauth2.AuthorizationCode
}

func newStubCodeRepo() *stubCodeRepo {
	return &stubCodeRepo{codes: make(map[string]*oauth2.AuthorizationCode)}
}

func (r *stubCodeRepo) Create(ctx context.Context, c *oauth2.AuthorizationCode) error {
	r.codes[c.Code] = c
	return nil
}

func (r *stubCodeRepo) GetByCode(ctx context.Context, code string) (*oauth2.AuthorizationCode, error) {
	c, ok := r.codes[code]
	if !ok {
		return nil, oauth2.ErrCodeNotFound
	}
	return c, nil
}

func (r *stubCodeRepo) ConsumeByCode(ctx context.Context, code, clientID string) (*oauth2.AuthorizationCode, error) {
	c, ok := r.codes[code]
	if !ok || c.ClientID != clientID {
		return nil, oauth2.ErrCodeNotFound
	}
	delete(r.codes, code)
	return c, nil
}

func (r *stubCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	for k, c := range r.codes {
		if c.IsExpired() {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

type stubTokenRepo struct {
	byAccess  map[string]*oauth2.Token
	byRefresh map[string]*oauth2.Token
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{byAccess: make(map[string]*oauth2.Token), byRefresh: make(map[string]*oauth2.Token)}
}

func (r *stubTokenRepo) Create(ctx context.Context, t *oauth2.Token) error {
	r.byAccess[t.AccessToken] = t
	r.byRefresh[t.RefreshToken] = t
	return nil
}

func (r *stubTokenRepo) GetByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	t, ok := r.byAccess[accessToken]
	if !ok {
		return nil, oauth2.ErrTokenNotFound
	}
	return t, nil
}

func (r *stubTokenRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	t, ok := r.byRefresh[refreshToken]
	if !ok {
		return nil, oauth2.ErrTokenNotFound
	}
	return t, nil
}

func (r *stubTokenRepo) Rotate(ctx context.Context, oldRefreshToken, newAccessToken, newRefreshToken, newScope string, newAccessExpiresAt, newRefreshExpiresAt time.Time) (*oauth2.Token, error) {
	t, ok := r.byRefresh[oldRefreshToken]
	if !ok || t.IsRevoked || t.IsRefreshExpired() {
		return nil, oauth2.ErrTokenNotFound
	}
	delete(r.byAccess, t.AccessToken)
	delete(r.byRefresh, t.RefreshToken)

	t.AccessToken = newAccessToken
	t.RefreshToken = newRefreshToken
	t.Scope = newScope
	t.AccessTokenExpiresAt = newAccessExpiresAt
	t.RefreshTokenExpiresAt = newRefreshExpiresAt

	r.byAccess[t.AccessToken] = t
	r.byRefresh[t.RefreshToken] = t
	return t, nil
}

func (r *stubTokenRepo) Revoke(ctx context.Context, accessToken string) error {
	if t, ok := r.byAccess[accessToken]; ok {
		t.IsRevoked = true
	}
	return nil
}

func (r *stubTokenRepo) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

type stubBlacklistRepo struct {
	entries map[string]*oauth2.TokenBlacklist
}

func newStubBlacklistRepo() *stubBlacklistRepo {
	return &stubBlacklistRepo{entries: make(map[string]*oauth2.TokenBlacklist)}
}

func (r *stubBlacklistRepo) Create(ctx context.Context, e *oauth2.TokenBlacklist) error {
	r.entries[e.TokenJTI] = e
	return nil
}

func (r *stubBlacklistRepo) GetByTokenJTI(ctx context.Context, jti string) (*oauth2.TokenBlacklist, error) {
	e, ok := r.entries[jti]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (r *stubBlacklistRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	for k, e := range r.entries {
		if e.IsExpired() {
			delete(r.entries, k)
			n++
		}
	}
	return n, nil
}

// testHarness bundles a fully wired Handler and its backing repositories so
// test cases can seed data directly (e.g. register a client) without going
// through HTTP.
type testHarness struct {
	handler     *Handler
	userRepo    *stubUserRepo
	sessionRepo *stubSessionRepo
	clientRepo  *stubClientRepo
	codeRepo    *stubCodeRepo
	tokenRepo   *stubTokenRepo
	blacklist   *stubBlacklistRepo
	hasher      *identity.PasswordHasher
}

const testAdminUsername = "admin"
const testAdminPassword = "super-secret-admin-password"

// newTestHarness wires every layer with cheap Argon2id parameters (these
// tests never run against a real attacker, only correctness) and an admin
// account whose password is testAdminPassword.
func newTestHarness() *testHarness {
	hasher := identity.NewPasswordHasher(8*1024, 1, 1, 16, 32)
	auditLogger := audit.NewSlogLogger()

	userRepo := newStubUserRepo()
	sessionRepo := newStubSessionRepo()
	clientRepo := newStubClientRepo()
	codeRepo := newStubCodeRepo()
	tokenRepo := newStubTokenRepo()
	blacklist := newStubBlacklistRepo()

	identityService := identity.NewService(userRepo, hasher, auditLogger, 5, 15*time.Minute)
	sessionService := session.NewService(sessionRepo, time.Hour, 30*time.Minute)
	clientService := oauth2.NewClientService(clientRepo, auditLogger, nil, nil)
	authorizeService := oauth2.NewAuthorizeService(clientRepo, codeRepo, auditLogger, 10*time.Minute)
	tokenService := oauth2.NewTokenService(clientRepo, codeRepo, tokenRepo, auditLogger, time.Hour, 30*24*time.Hour)
	validator := oauth2.NewValidator(tokenRepo, blacklist)
	revocationService := oauth2.NewRevocationService(tokenRepo, blacklist, validator, auditLogger)

	adminHash, err := hasher.Hash(testAdminPassword)
	if err != nil {
		panic(err)
	}

	handler := NewHandler(
		identityService,
		sessionService,
		clientService,
		authorizeService,
		tokenService,
		validator,
		revocationService,
		auditLogger,
		SessionConfig{CookieName: "session_id", CookiePath: "/"},
		AdminConfig{Username: testAdminUsername, PasswordHash: adminHash},
		hasher,
	)

	return &testHarness{
		handler:     handler,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		clientRepo:  clientRepo,
		codeRepo:    codeRepo,
		tokenRepo:   tokenRepo,
		blacklist:   blacklist,
		hasher:      hasher,
	}
}

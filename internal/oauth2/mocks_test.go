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
)

// Mock repositories shared across this package's tests.

type MockClientRepo struct {
	clients map[string]*Client
}

func NewMockClientRepo() *MockClientRepo {
	return &MockClientRepo{clients: make(map[string]*Client)}
}

func (m *MockClientRepo) Create(ctx context.Context, c *Client) error {
	m.clients[c.ClientID] = c
	return nil
}
func (m *MockClientRepo) GetByClientID(ctx context.Context, clientID string) (*Client, error) {
	c, ok := m.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}
func (m *MockClientRepo) GetByID(ctx context.Context, id string) (*Client, error) {
	for _, c := range m.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrClientNotFound
}
func (m *MockClientRepo) Update(ctx context.Context, c *Client) error {
	m.clients[c.ClientID] = c
	return nil
}
func (m *MockClientRepo) Delete(ctx context.Context, clientID string) error {
	delete(m.clients, clientID)
	return nil
}
func (m *MockClientRepo) List(ctx context.Context) ([]*Client, error) {
	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, nil
}

type MockCodeRepo struct {
	codes map[string]*AuthorizationCode
}

func NewMockCodeRepo() *MockCodeRepo {
	return &MockCodeRepo{codes: make(map[string]*AuthorizationCode)}
}

func (m *MockCodeRepo) Create(ctx context.Context, code *AuthorizationCode) error {
	m.codes[code.Code] = code
	return nil
}
func (m *MockCodeRepo) GetByCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	return c, nil
}
func (m *MockCodeRepo) ConsumeByCode(ctx context.Context, code, clientID string) (*AuthorizationCode, error) {
	c, ok := m.codes[code]
	if !ok || c.ClientID != clientID {
		return nil, ErrCodeNotFound
	}
	delete(m.codes, code)
	return c, nil
}
func (m *MockCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	for k, c := range m.codes {
		if c.IsExpired() {
			delete(m.codes, k)
			n++
		}
	}
	return n, nil
}

type MockTokenRepo struct {
	byAccess  map[string]*Token
	byRefresh map[string]*Token
}

func NewMockTokenRepo() *MockTokenRepo {
	return &MockTokenRepo{byAccess: make(map[string]*Token), byRefresh: make(map[string]*Token)}
}

func (m *MockTokenRepo) Create(ctx context.Context, t *Token) error {
	m.byAccess[t.AccessToken] = t
	m.byRefresh[t.RefreshToken] = t
	return nil
}
func (m *MockTokenRepo) GetByAccessToken(ctx context.Context, accessToken string) (*Token, error) {
	t, ok := m.byAccess[accessToken]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return t, nil
}
func (m *MockTokenRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	t, ok := m.byRefresh[refreshToken]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return t, nil
}
func (m *MockTokenRepo) Rotate(ctx context.Context, oldRefreshToken, newAccessToken, newRefreshToken, newScope string, newAccessExpiresAt, newRefreshExpiresAt time.Time) (*Token, error) {
	t, ok := m.byRefresh[oldRefreshToken]
	if !ok || t.IsRevoked || t.IsRefreshExpired() {
		return nil, ErrTokenNotFound
	}
	delete(m.byAccess, t.AccessToken)
	delete(m.byRefresh, t.RefreshToken)

	t.AccessToken = newAccessToken
	t.RefreshToken = newRefreshToken
	t.Scope = newScope
	t.AccessTokenExpiresAt = newAccessExpiresAt
	t.RefreshTokenExpiresAt = newRefreshExpiresAt

	m.byAccess[t.AccessToken] = t
	m.byRefresh[t.RefreshToken] = t
	return t, nil
}
func (m *MockTokenRepo) Revoke(ctx context.Context, accessToken string) error {
	if t, ok := m.byAccess[accessToken]; ok {
		t.IsRevoked = true
	}
	return nil
}
func (m *MockTokenRepo) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

type MockBlacklistRepo struct {
	entries map[string]*TokenBlacklist
}

func NewMockBlacklistRepo() *MockBlacklistRepo {
	return &MockBlacklistRepo{entries: make(map[string]*TokenBlacklist)}
}

func (m *MockBlacklistRepo) Create(ctx context.Context, e *TokenBlacklist) error {
	m.entries[e.TokenJTI] = e
	return nil
}
func (m *MockBlacklistRepo) GetByTokenJTI(ctx context.Context, jti string) (*TokenBlacklist, error) {
	e, ok := m.entries[jti]
	if !ok {
		return nil, nil
	}
	return e, nil
}
func (m *MockBlacklistRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	for k, e := range m.entries {
		if e.IsExpired() {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

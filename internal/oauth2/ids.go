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
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// generateID returns a random internal row identifier.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateAuthorizationCode returns a high-entropy authorization code.
func generateAuthorizationCode() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateToken returns a high-entropy bearer/refresh token value.
func generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// hashToken derives the blacklist lookup key (jti) for a bearer token,
// without persisting the raw token value itself.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// hashClientSecret hashes a client secret for storage. Client secrets are
// server-generated high-entropy values (not user-chosen passwords), so a
// fast cryptographic hash is adequate here; the memory-hard Argon2id
// hasher in internal/identity is reserved for user-chosen and admin
// credentials.
func hashClientSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// constantTimeEqual compares two strings in time independent of their
// content, to avoid leaking secret material via timing side channels.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateClientSecret generates a new raw client secret.
func GenerateClientSecret() string {
	return generateToken()
}

// HashClientSecret hashes a client secret for storage.
func HashClientSecret(secret string) string {
	return hashClientSecret(secret)
}

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
	"crypto/sha256"
	"encoding/base64"
)

// PKCE is mandatory and only the S256 transform is accepted; "plain" is
// rejected at validation time (see AuthorizeService.ValidateAuthorizeRequest).
const CodeChallengeMethodS256 = "S256"

// validatePKCE recomputes base64url(sha256(verifier)) and compares it,
// constant-time, against the stored challenge. method is assumed to
// already have been normalized to S256 by the caller.
func validatePKCE(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return constantTimeEqual(challenge, computed)
}

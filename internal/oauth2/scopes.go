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

import "strings"

// scopeDescriptions maps a scope token to a human-readable sentence shown
// on the consent page. Scopes without an entry fall back to their raw
// name, so adding a new scope to a client's AllowedScopes never breaks
// rendering.
var scopeDescriptions = map[string]string{
	"memories:read":  "Read your stored memories",
	"memories:write": "Create and modify your stored memories",
	"memories:admin": "Manage memory collections on your behalf",
	"profile":        "View your basic profile information",
}

// ScopeDescription returns the human-readable description for a scope
// token, falling back to the token itself when undocumented.
func ScopeDescription(scope string) string {
	if desc, ok := scopeDescriptions[scope]; ok {
		return desc
	}
	return scope
}

// ScopeDescriptions splits a space-separated scope string and resolves a
// description for each token, in order, for consent-page rendering.
func ScopeDescriptions(scope string) []string {
	toks := strings.Fields(scope)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, ScopeDescription(t))
	}
	return out
}

// isSubsetScope reports whether every token in narrowed is present in
// original — used to enforce that refresh-token scope narrowing never
// grants more than the original grant.
func isSubsetScope(narrowed, original string) bool {
	allowed := make(map[string]bool)
	for _, t := range strings.Fields(original) {
		allowed[t] = true
	}
	for _, t := range strings.Fields(narrowed) {
		if !allowed[t] {
			return false
		}
	}
	return true
}

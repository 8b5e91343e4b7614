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

import "fmt"

// Error represents a protocol-level OAuth2 error (RFC 6749).
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`

	// Redirect reports whether this error must be delivered as a redirect
	// to the client's redirect_uri rather than a direct HTTP response. It
	// replaces substring-matching on Description ("...redirect...") with an
	// explicit field set by whoever constructs the error.
	Redirect bool `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("oauth2 error: %s (%s)", e.Code, e.Description)
}

// OAuth2 standard error codes (RFC 6749 §4/§5, RFC 6750 §3).
const (
	ErrInvalidRequest         = "invalid_request"
	ErrInvalidClient          = "invalid_client"
	ErrInvalidGrant           = "invalid_grant"
	ErrUnauthorizedClient     = "unauthorized_client"
	ErrUnsupportedGrantType   = "unsupported_grant_type"
	ErrUnsupportedResponse    = "unsupported_response_type"
	ErrInvalidScope           = "invalid_scope"
	ErrAccessDenied           = "access_denied"
	ErrLoginRequired          = "login_required"
	ErrServerError            = "server_error"
	ErrTemporarilyUnavailable = "temporarily_unavailable"
	ErrUnauthorized           = "unauthorized"
	ErrInsufficientScope      = "insufficient_scope"
)

// NewError creates a new protocol error delivered as a direct HTTP
// response (400/401/403/5xx).
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// NewRedirectError creates a new protocol error that must be delivered as
// a 302 redirect to the client's redirect_uri with the error parameters in
// the query string.
func NewRedirectError(code, description string) *Error {
	return &Error{Code: code, Description: description, Redirect: true}
}

// WithState attaches a state parameter to the error, echoed verbatim in
// redirect errors.
func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

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
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/opentrusty/internal/observability/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware validates the session cookie, touches the session's
// LastSeenAt, and injects the authenticated user_id and session_id into
// the request context. Used to protect the authorize/consent surface,
// which requires an already-authenticated end user.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := h.getSessionFromCookie(r)
		if sessionID == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		sess, err := h.sessionService.Get(r.Context(), sessionID)
		if err != nil {
			h.clearSessionCookie(w)
			respondError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		if err := h.sessionService.Touch(r.Context(), sessionID); err != nil {
			slog.ErrorContext(r.Context(), "failed to touch session", logger.Error(err))
		}

		ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
		ctx = context.WithValue(ctx, sessionIDKey, sess.ID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerAuthMiddleware resolves the Authorization: Bearer header via the
// Validator and injects the resulting ValidatedToken into context.
// requiredScope, if non-empty, is enforced with 403 insufficient_scope
// (RFC 6750 §3.1) rather than a bare 401.
func (h *Handler) BearerAuthMiddleware(requiredScope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="opentrusty"`)
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			token := strings.TrimPrefix(auth, prefix)

			validated, err := h.validator.ValidateAccessToken(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="opentrusty", error="invalid_token"`)
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if requiredScope != "" && !validated.HasScope(requiredScope) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="opentrusty", error="insufficient_scope", scope="`+requiredScope+`"`)
				respondError(w, http.StatusForbidden, "insufficient_scope")
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, validated)
			ctx = context.WithValue(ctx, userIDKey, validated.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminBasicAuthMiddleware protects the client-registry endpoints with HTTP
// Basic auth, checked in constant time against the configured admin
// username/password hash.
func (h *Handler) AdminBasicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="opentrusty-admin"`)
			respondError(w, http.StatusUnauthorized, "admin authentication required")
			return
		}

		validUsername := subtle.ConstantTimeCompare([]byte(username), []byte(h.adminUsername)) == 1

		ok, err := h.adminHasher.Verify(password, h.adminPasswordHash)
		if err != nil || !ok || !validUsername {
			slog.WarnContext(r.Context(), "admin auth failed", "remote_addr", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="opentrusty-admin"`)
			respondError(w, http.StatusUnauthorized, "invalid admin credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware protects against Cross-Site Request Forgery for
// state-changing requests. We enforce a custom header 'X-CSRF-Token'.
func (h *Handler) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions || r.Method == http.MethodTrace {
			next.ServeHTTP(w, r)
			return
		}

		csrfToken := r.Header.Get("X-CSRF-Token")
		if csrfToken == "" {
			slog.WarnContext(r.Context(), "missing CSRF token header", "method", r.Method, "path", r.URL.Path)
			respondError(w, http.StatusForbidden, "CSRF protection: X-CSRF-Token header is required for state-changing operations")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// @title OpenTrusty Authorization Server API
// @version 1.0.0
// @description OAuth 2.1-style authorization server: authorization code +
// PKCE, refresh rotation, bearer validation, and client management.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/oauth

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name session_id

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oauth2"
	"github.com/opentrusty/opentrusty/internal/observability/logger"
	"github.com/opentrusty/opentrusty/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies.
type Handler struct {
	identityService   *identity.Service
	sessionService    *session.Service
	clientService     *oauth2.ClientService
	authorizeService  *oauth2.AuthorizeService
	tokenService      *oauth2.TokenService
	validator         *oauth2.Validator
	revocationService *oauth2.RevocationService
	auditLogger       audit.Logger
	sessionConfig     SessionConfig

	adminUsername     string
	adminPasswordHash string
	adminHasher       *identity.PasswordHasher

	consentTemplate *consentTemplate
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// AdminConfig holds the HTTP Basic credentials that gate the client
// registry. AdminPasswordHash is an Argon2id hash, verified with the same
// PasswordHasher used for user credentials.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	identityService *identity.Service,
	sessionService *session.Service,
	clientService *oauth2.ClientService,
	authorizeService *oauth2.AuthorizeService,
	tokenService *oauth2.TokenService,
	validator *oauth2.Validator,
	revocationService *oauth2.RevocationService,
	auditLogger audit.Logger,
	sessionConfig SessionConfig,
	adminConfig AdminConfig,
	adminHasher *identity.PasswordHasher,
) *Handler {
	return &Handler{
		identityService:   identityService,
		sessionService:    sessionService,
		clientService:     clientService,
		authorizeService:  authorizeService,
		tokenService:      tokenService,
		validator:         validator,
		revocationService: revocationService,
		auditLogger:       auditLogger,
		sessionConfig:     sessionConfig,
		adminUsername:     adminConfig.Username,
		adminPasswordHash: adminConfig.PasswordHash,
		adminHasher:       adminHasher,
		consentTemplate:   newConsentTemplate(),
	}
}

// NewRouter creates a new HTTP router mounting the authorization server's
// endpoints under /api/oauth, plus the teacher's ambient health check.
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/oauth", func(r chi.Router) {
		// Authorization Code Issuer. Requires an authenticated session;
		// every visit re-prompts for consent.
		r.With(h.AuthMiddleware).Get("/authorize", h.Authorize)
		r.With(h.AuthMiddleware, h.CSRFMiddleware).Post("/consent", h.Consent)

		// Token Issuer. Client-authenticated, not session-authenticated.
		r.Post("/token", h.Token)

		// Revocation and introspection.
		r.Post("/tokens/revoke", h.Revoke)
		r.Post("/tokens/introspect", h.Introspect)

		// Client Registry, admin-only.
		r.Route("/admin/clients", func(r chi.Router) {
			r.Use(h.AdminBasicAuthMiddleware)
			r.Post("/", h.RegisterClient)
			r.Get("/", h.ListClients)
			r.Get("/{clientID}", h.GetClient)
			r.Put("/{clientID}", h.UpdateClient)
			r.Delete("/{clientID}", h.DeleteClient)
		})

		// Resource-owner account management, protected by the bearer
		// validator so that an API consumer holding an access token can
		// manage its own account.
		r.Route("/account", func(r chi.Router) {
			r.Use(h.BearerAuthMiddleware(""))
			r.Get("/me", h.GetCurrentUser)
			r.Put("/profile", h.UpdateProfile)
			r.Post("/change-password", h.ChangePassword)
		})
	})

	// Session-based registration/login/logout, kept outside /api/oauth
	// since they predate and feed the OAuth2 flow rather than being part
	// of its wire protocol.
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(h.AuthMiddleware).Post("/logout", h.Logout)
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "opentrusty",
	})
}

// RegisterRequest represents registration data
type RegisterRequest struct {
	Email      string `json:"email" binding:"required" example:"user@example.com"`
	Username   string `json:"username" binding:"required" example:"jdoe"`
	Password   string `json:"password" binding:"required" example:"secret123"`
	GivenName  string `json:"given_name" example:"John"`
	FamilyName string `json:"family_name" example:"Doe"`
}

// Register handles resource-owner registration.
// @Summary Register a new user
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration Data"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile := identity.Profile{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		FullName:   req.GivenName + " " + req.FamilyName,
	}

	user, err := h.identityService.ProvisionIdentity(r.Context(), req.Email, req.Username, profile)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to provision user",
			logger.Error(err),
			logger.Email(req.Email),
		)

		switch err {
		case identity.ErrUserAlreadyExists:
			respondError(w, http.StatusConflict, "user already exists")
		case identity.ErrInvalidEmail:
			respondError(w, http.StatusBadRequest, "invalid email address")
		case identity.ErrInvalidUsername:
			respondError(w, http.StatusBadRequest, "invalid username")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	if err := h.identityService.AddPassword(r.Context(), user.ID, req.Password); err != nil {
		slog.ErrorContext(r.Context(), "failed to set password",
			logger.Error(err),
			"user_id", user.ID,
		)
		respondError(w, http.StatusBadRequest, "failed to set password: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"user@example.com"`
	Password string `json:"password" binding:"required" example:"secret123"`
}

// Login authenticates a user and creates a session.
// @Summary Login
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessionService.Create(r.Context(), user.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// Logout destroys the current session.
// @Summary Logout
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]string
// @Router /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())
	if sessionID != "" {
		h.sessionService.Destroy(r.Context(), sessionID)
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// GetCurrentUser returns the current authenticated user identity.
// @Summary Get Current User
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/oauth/account/me [get]
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	user, err := h.identityService.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"email":    user.Email,
		"username": user.Username,
		"profile":  user.Profile,
	})
}

// UpdateProfile updates the user profile.
// @Summary Update Profile
// @Tags Account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body identity.Profile true "New Profile"
// @Success 200 {object} map[string]string
// @Router /api/oauth/account/profile [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var profile identity.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.UpdateProfile(r.Context(), userID, profile); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "profile updated successfully",
	})
}

// ChangePasswordRequest represents password change data
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword changes the user password.
// @Summary Change Password
// @Tags Account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Password Change Data"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/oauth/account/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.identityService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch err {
		case identity.ErrInvalidCredentials:
			respondError(w, http.StatusUnauthorized, "invalid old password")
		case identity.ErrWeakPassword:
			respondError(w, http.StatusBadRequest, "new password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password changed successfully",
	})
}

// Helper functions

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   86400,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func respondOAuthError(w http.ResponseWriter, status int, oerr *oauth2.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(oerr)
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

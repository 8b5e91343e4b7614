package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Service provides session lifecycle management for the browser-facing
// login and consent flow. Session IDs are high-entropy random values, not
// sequential IDs, since they double as the bearer credential stored in
// the user's session cookie.
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
}

// NewService creates a new session service.
func NewService(repo Repository, lifetime, idleTimeout time.Duration) *Service {
	return &Service{repo: repo, lifetime: lifetime, idleTimeout: idleTimeout}
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create starts a new session for userID, bound to the requesting
// browser's IP address and user agent for audit purposes.
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:         id,
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// Get resolves a session by ID, rejecting it if expired or idle-timed-out.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}
	if sess.IsIdle(s.idleTimeout) {
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// Touch refreshes a session's last-seen timestamp, extending its idle
// window without extending its absolute expiry.
func (s *Service) Touch(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.LastSeenAt = time.Now()
	return s.repo.Update(ctx, sess)
}

// Destroy ends a single session, used on logout.
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// DestroyAllForUser ends every session belonging to a user. No handler in
// this tree calls it; a password change leaves existing sessions in place.
func (s *Service) DestroyAllForUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// CleanupExpired sweeps expired sessions, run periodically by a
// background worker.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

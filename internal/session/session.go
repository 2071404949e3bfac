package session

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session represents a user session. TenantID is captured at login and is
// the ONLY source of tenant context for authenticated requests.
type Session struct {
	ID         string
	TenantID   string
	TenantSlug string
	UserID     string
	IPAddress  string
	UserAgent  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsIdle checks if the session has been idle for too long
func (s *Session) IsIdle(idleTimeout time.Duration) bool {
	return time.Since(s.LastSeenAt) > idleTimeout
}

// Repository defines the interface for session persistence. Session lookup
// happens before tenant context is bound, so this repository takes explicit
// ids instead of going through the tenant-scoped data-access layer.
type Repository interface {
	Create(session *Session) error
	Get(sessionID string) (*Session, error)
	Update(session *Session) error
	Delete(sessionID string) error
	DeleteByUserID(userID string) error
	DeleteExpired() error
}

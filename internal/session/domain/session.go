package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is an authentication session. The opaque Token is the sole lookup key
// for authentication. RevokedAt set means invalid regardless of expiry and is
// never cleared; expiry is reached only by time passing.
type Session struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	TenantID       uuid.UUID
	Token          string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	LastAccessedAt *time.Time // advanced on each successful token lookup
	RevokedAt      *time.Time // nil while not revoked
	UserAgent      string     // optional client metadata
	IPAddress      string
}

// ValidAt reports whether the session is usable at the given instant: not
// revoked and expiring strictly after it. A session expiring exactly at the
// instant is already expired.
func (s *Session) ValidAt(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// Revoked reports whether the session was explicitly invalidated.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// Validate validates the session for persistence. Returns an error describing
// the first validation failure.
func (s *Session) Validate() error {
	if s.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if s.TenantID == uuid.Nil {
		return errors.New("tenant id is required")
	}
	if s.ExpiresAt.IsZero() {
		return errors.New("expiry is required")
	}
	return nil
}

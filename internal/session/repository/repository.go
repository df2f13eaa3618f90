package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/session/domain"
)

// Repository defines persistence for authentication sessions. A session is
// valid iff it is not revoked and expires strictly after the current time;
// lookups by token never reveal why a miss missed.
type Repository interface {
	// Create persists a new session with a server-assigned id and opaque token.
	Create(ctx context.Context, s *domain.Session) (*domain.Session, error)
	// GetByToken returns the valid session for token after advancing its
	// last-accessed time, or nil for an expired, revoked, or unknown token.
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	// ListByUser returns the user's currently-valid sessions, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	// Invalidate revokes the session for token. True when this call revoked
	// it; false when it was already revoked or unknown.
	Invalidate(ctx context.Context, token string) (bool, error)
	// InvalidateAllByUser revokes every non-revoked session of the user and
	// returns how many it revoked.
	InvalidateAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// CleanupExpired removes sessions expiring strictly before cutoff,
	// revoked or not, and returns the count removed. The only purge path.
	CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error)
	// Update overwrites the session by identifier with no state guard; meant
	// for administrative correction, not lifecycle transitions.
	Update(ctx context.Context, s *domain.Session) (*domain.Session, error)
}

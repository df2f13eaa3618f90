package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/fault"
	"identity-store/internal/pipeline"
	"identity-store/internal/security"
	"identity-store/internal/session/codec"
	"identity-store/internal/session/domain"
	"identity-store/internal/storage"
)

var mapping = codec.Mapping{}

// StoreRepository implements Repository against any storage driver.
type StoreRepository struct {
	driver storage.Driver
	run    *pipeline.Runner
	now    func() time.Time
}

// NewStoreRepository returns a session repository backed by the given driver,
// with mutations executed through run.
func NewStoreRepository(driver storage.Driver, run *pipeline.Runner) *StoreRepository {
	return &StoreRepository{driver: driver, run: run, now: time.Now}
}

func (r *StoreRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *StoreRepository) query(filter map[string]any, extra storage.Predicate) (storage.Query, error) {
	pred, err := storage.BuildFilter(mapping, r.driver.Dialect(), filter)
	if err != nil {
		return storage.Query{}, err
	}
	return storage.Query{
		Table:   codec.Table,
		Columns: codec.Columns,
		Where:   storage.AndAll(pred, extra),
	}, nil
}

// Create persists a new session. Identifier, token, and creation time are
// assigned here; expiry comes from the caller.
func (r *StoreRepository) Create(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	params := map[string]any{"user_id": s.UserID, "tenant_id": s.TenantID}
	return pipeline.Execute(ctx, r.run, "session.create", params, func(ctx context.Context) (*domain.Session, error) {
		created := *s
		if err := created.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrMalformed, err)
		}
		token, err := security.NewSessionToken()
		if err != nil {
			return nil, err
		}
		created.ID = uuid.New()
		created.Token = token
		created.CreatedAt = r.timestamp()
		created.LastAccessedAt = nil
		created.RevokedAt = nil
		if _, err := r.driver.Exec(ctx, storage.Insert(codec.Table, codec.Encode(&created, r.driver.Dialect()))); err != nil {
			return nil, err
		}
		return &created, nil
	})
}

// GetByToken looks the session up by token with the validity predicate and, on
// a hit, advances last_accessed_at before returning the touched entity. A
// miss returns nil whether the token is expired, revoked, or unknown. Runs
// through the pipeline because of the write side effect; concurrent lookups
// may interleave their touches, last write wins.
func (r *StoreRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	params := map[string]any{"token": security.TokenFingerprint(token)}
	return pipeline.Execute(ctx, r.run, "session.get_by_token", params, func(ctx context.Context) (*domain.Session, error) {
		now := r.timestamp()
		q, err := r.query(
			map[string]any{"token": token, "revokedAt": nil},
			storage.Gt{Column: "expires_at", Value: now},
		)
		if err != nil {
			return nil, err
		}
		rec, err := r.driver.QueryOne(ctx, q)
		if err != nil {
			return nil, err
		}
		s, err := codec.Decode(rec, r.driver.Dialect())
		if err != nil || s == nil {
			return nil, err
		}
		if _, err := r.driver.Exec(ctx, storage.Update(codec.Table,
			storage.Record{"last_accessed_at": now},
			storage.Eq{Column: "id", Value: storage.EncodeUUID(s.ID)},
		)); err != nil {
			return nil, err
		}
		s.LastAccessedAt = &now
		return s, nil
	})
}

// ListByUser returns the user's currently-valid sessions, newest first.
func (r *StoreRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	q, err := r.query(
		map[string]any{"userID": userID, "revokedAt": nil},
		storage.Gt{Column: "expires_at", Value: r.timestamp()},
	)
	if err != nil {
		return nil, err
	}
	q.OrderBy = storage.DefaultOrder
	recs, err := r.driver.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.decodeAll(recs)
}

// Invalidate revokes the session for token, conditioned on it not being
// revoked yet. True exactly once per session.
func (r *StoreRepository) Invalidate(ctx context.Context, token string) (bool, error) {
	params := map[string]any{"token": security.TokenFingerprint(token)}
	return pipeline.Execute(ctx, r.run, "session.invalidate", params, func(ctx context.Context) (bool, error) {
		n, err := r.driver.Exec(ctx, storage.Update(codec.Table,
			storage.Record{"revoked_at": r.timestamp()},
			storage.AndAll(
				storage.Eq{Column: "session_token", Value: token},
				storage.IsNull{Column: "revoked_at"},
			),
		))
		if err != nil {
			return false, err
		}
		return n > 0, nil
	})
}

// InvalidateAllByUser revokes every non-revoked session of the user.
func (r *StoreRepository) InvalidateAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	params := map[string]any{"user_id": userID}
	return pipeline.Execute(ctx, r.run, "session.invalidate_all", params, func(ctx context.Context) (int64, error) {
		return r.driver.Exec(ctx, storage.Update(codec.Table,
			storage.Record{"revoked_at": r.timestamp()},
			storage.AndAll(
				storage.Eq{Column: "user_id", Value: storage.EncodeUUID(userID)},
				storage.IsNull{Column: "revoked_at"},
			),
		))
	})
}

// CleanupExpired hard-deletes sessions expiring strictly before cutoff,
// regardless of revocation state.
func (r *StoreRepository) CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	params := map[string]any{"cutoff": cutoff.UTC()}
	return pipeline.Execute(ctx, r.run, "session.cleanup_expired", params, func(ctx context.Context) (int64, error) {
		return r.driver.Exec(ctx, storage.Delete(codec.Table,
			storage.Lt{Column: "expires_at", Value: cutoff.UTC()},
		))
	})
}

// Update overwrites the session by identifier with no state guard. NotFound
// fault when no row matches.
func (r *StoreRepository) Update(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	params := map[string]any{"id": s.ID}
	return pipeline.Execute(ctx, r.run, "session.update", params, func(ctx context.Context) (*domain.Session, error) {
		updated := *s
		if err := updated.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrMalformed, err)
		}
		set := codec.Encode(&updated, r.driver.Dialect())
		// Identifier and creation time are immutable; everything else is fair
		// game for administrative correction.
		delete(set, "id")
		delete(set, "created_at")
		n, err := r.driver.Exec(ctx, storage.Update(codec.Table, set, storage.Eq{
			Column: "id", Value: storage.EncodeUUID(updated.ID),
		}))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: session %s", fault.ErrNotFound, updated.ID)
		}
		return &updated, nil
	})
}

func (r *StoreRepository) decodeAll(recs []storage.Record) ([]*domain.Session, error) {
	out := make([]*domain.Session, len(recs))
	for i, rec := range recs {
		s, err := codec.Decode(rec, r.driver.Dialect())
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/fault"
	"identity-store/internal/pipeline"
	"identity-store/internal/storage"
	"identity-store/internal/user/codec"
	"identity-store/internal/user/domain"
)

var mapping = codec.Mapping{}

// StoreRepository implements Repository against any storage driver.
type StoreRepository struct {
	driver storage.Driver
	run    *pipeline.Runner
	now    func() time.Time
}

// NewStoreRepository returns a user repository backed by the given driver, with
// mutations executed through run.
func NewStoreRepository(driver storage.Driver, run *pipeline.Runner) *StoreRepository {
	return &StoreRepository{driver: driver, run: run, now: time.Now}
}

// timestamp is the single clock read for mutations, truncated to the
// microsecond precision the storage engines round-trip.
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

// GetByID returns the user for id, or nil if not found. Soft-deleted rows are
// treated as absent.
func (r *StoreRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	q, err := r.query(map[string]any{"id": id, "deletedAt": nil}, nil)
	if err != nil {
		return nil, err
	}
	rec, err := r.driver.QueryOne(ctx, q)
	if err != nil {
		return nil, err
	}
	return codec.Decode(rec, r.driver.Dialect())
}

// GetByEmail returns the tenant's user with the given email, or nil if not
// found. Soft-deleted rows are treated as absent.
func (r *StoreRepository) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*domain.User, error) {
	q, err := r.query(map[string]any{"tenantID": tenantID, "email": email, "deletedAt": nil}, nil)
	if err != nil {
		return nil, err
	}
	rec, err := r.driver.QueryOne(ctx, q)
	if err != nil {
		return nil, err
	}
	return codec.Decode(rec, r.driver.Dialect())
}

// ListByTenant returns one page of the tenant's users plus the total count for
// the same filter without pagination.
func (r *StoreRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page, error) {
	filter := map[string]any{"tenantID": tenantID}
	if !opts.IncludeDeleted {
		filter["deletedAt"] = nil
	}
	if opts.Role != nil {
		filter["role"] = *opts.Role
	}
	if opts.Active != nil {
		filter["active"] = *opts.Active
	}
	var extra storage.Predicate
	if opts.EmailContains != "" {
		extra = storage.Contains{Column: "email", Substring: opts.EmailContains}
	}
	q, err := r.query(filter, extra)
	if err != nil {
		return nil, err
	}
	total, err := r.driver.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	q.OrderBy = storage.DefaultOrder
	recs, err := r.driver.Query(ctx, q.Paged(opts.Page))
	if err != nil {
		return nil, err
	}
	users, err := r.decodeAll(recs)
	if err != nil {
		return nil, err
	}
	return &Page{Users: users, TotalCount: total}, nil
}

// Create persists a new user. The identifier and creation time are assigned
// here; a duplicate tenant+email surfaces as a Conflict fault.
func (r *StoreRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	params := map[string]any{"tenant_id": u.TenantID, "email": u.Email}
	return pipeline.Execute(ctx, r.run, "user.create", params, func(ctx context.Context) (*domain.User, error) {
		return r.create(ctx, r.driver, u)
	})
}

func (r *StoreRepository) create(ctx context.Context, d storage.Driver, u *domain.User) (*domain.User, error) {
	created := *u
	if err := created.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrMalformed, err)
	}
	created.ID = uuid.New()
	created.CreatedAt = r.timestamp()
	created.UpdatedAt = nil
	created.DeletedAt = nil
	if _, err := d.Exec(ctx, storage.Insert(codec.Table, codec.Encode(&created, d.Dialect()))); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update overwrites the user's mutable fields by identifier and stamps
// UpdatedAt. It does not filter on deletion state, so a soft-deleted row may
// be updated, but deletion state itself is owned by SoftDelete and HardDelete
// and is never written here. NotFound fault when no row matches.
func (r *StoreRepository) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	params := map[string]any{"id": u.ID}
	return pipeline.Execute(ctx, r.run, "user.update", params, func(ctx context.Context) (*domain.User, error) {
		return r.update(ctx, r.driver, u)
	})
}

func (r *StoreRepository) update(ctx context.Context, d storage.Driver, u *domain.User) (*domain.User, error) {
	updated := *u
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrMalformed, err)
	}
	now := r.timestamp()
	updated.UpdatedAt = &now

	set := codec.Encode(&updated, d.Dialect())
	// Identifier, tenant and creation time are immutable after creation.
	// Deletion state is owned by the delete operations.
	delete(set, "id")
	delete(set, "tenant_id")
	delete(set, "created_at")
	delete(set, "deleted_at")

	n, err := d.Exec(ctx, storage.Update(codec.Table, set, storage.Eq{
		Column: "id", Value: storage.EncodeUUID(updated.ID),
	}))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: user %s", fault.ErrNotFound, updated.ID)
	}
	return &updated, nil
}

// SoftDelete marks the user deleted, conditioned on it not being deleted
// already. True exactly once per row.
func (r *StoreRepository) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	params := map[string]any{"id": id}
	return pipeline.Execute(ctx, r.run, "user.soft_delete", params, func(ctx context.Context) (bool, error) {
		now := r.timestamp()
		n, err := r.driver.Exec(ctx, storage.Update(codec.Table, storage.Record{
			"deleted_at": now,
			"updated_at": now,
		}, storage.AndAll(
			storage.Eq{Column: "id", Value: storage.EncodeUUID(id)},
			storage.IsNull{Column: "deleted_at"},
		)))
		if err != nil {
			return false, err
		}
		return n > 0, nil
	})
}

// HardDelete removes the row unconditionally. True when a row existed.
func (r *StoreRepository) HardDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	params := map[string]any{"id": id}
	return pipeline.Execute(ctx, r.run, "user.hard_delete", params, func(ctx context.Context) (bool, error) {
		n, err := r.driver.Exec(ctx, storage.Delete(codec.Table, storage.Eq{
			Column: "id", Value: storage.EncodeUUID(id),
		}))
		if err != nil {
			return false, err
		}
		return n > 0, nil
	})
}

// CreateBatch persists all users inside one transaction; any failure rolls the
// whole batch back and surfaces as BatchAborted.
func (r *StoreRepository) CreateBatch(ctx context.Context, users []*domain.User) ([]*domain.User, error) {
	params := map[string]any{"count": len(users)}
	return pipeline.Execute(ctx, r.run, "user.create_batch", params, func(ctx context.Context) ([]*domain.User, error) {
		created := make([]*domain.User, 0, len(users))
		err := r.driver.InTx(ctx, func(tx storage.Driver) error {
			for i, u := range users {
				c, err := r.create(ctx, tx, u)
				if err != nil {
					return fmt.Errorf("%w: member %d: %w", fault.ErrBatchAborted, i, err)
				}
				created = append(created, c)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return created, nil
	})
}

// UpdateBatch updates all users inside one transaction. A member whose id does
// not exist aborts the batch; no partial writes remain visible.
func (r *StoreRepository) UpdateBatch(ctx context.Context, users []*domain.User) error {
	params := map[string]any{"count": len(users)}
	_, err := pipeline.Execute(ctx, r.run, "user.update_batch", params, func(ctx context.Context) (struct{}, error) {
		err := r.driver.InTx(ctx, func(tx storage.Driver) error {
			for i, u := range users {
				if _, err := r.update(ctx, tx, u); err != nil {
					return fmt.Errorf("%w: member %d: %w", fault.ErrBatchAborted, i, err)
				}
			}
			return nil
		})
		return struct{}{}, err
	})
	return err
}

// CountByTenant counts the tenant's live users.
func (r *StoreRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	q, err := r.query(map[string]any{"tenantID": tenantID, "deletedAt": nil}, nil)
	if err != nil {
		return 0, err
	}
	return r.driver.Count(ctx, q)
}

// ListActiveByRole returns the tenant's active, live users holding role,
// newest first.
func (r *StoreRepository) ListActiveByRole(ctx context.Context, tenantID uuid.UUID, role domain.Role) ([]*domain.User, error) {
	q, err := r.query(map[string]any{
		"tenantID":  tenantID,
		"role":      role,
		"active":    true,
		"deletedAt": nil,
	}, nil)
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

// ListCreatedSince returns the tenant's live users created at or after since,
// newest first.
func (r *StoreRepository) ListCreatedSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*domain.User, error) {
	q, err := r.query(map[string]any{"tenantID": tenantID, "deletedAt": nil},
		storage.Gte{Column: "created_at", Value: since.UTC()})
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

// ListByEmailDomain returns the tenant's live users whose email is under the
// given domain, newest first. The leading "@" may be omitted.
func (r *StoreRepository) ListByEmailDomain(ctx context.Context, tenantID uuid.UUID, emailDomain string) ([]*domain.User, error) {
	suffix := "@" + strings.TrimPrefix(emailDomain, "@")
	q, err := r.query(map[string]any{"tenantID": tenantID, "deletedAt": nil},
		storage.HasSuffix{Column: "email", Suffix: suffix})
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

func (r *StoreRepository) decodeAll(recs []storage.Record) ([]*domain.User, error) {
	out := make([]*domain.User, len(recs))
	for i, rec := range recs {
		u, err := codec.Decode(rec, r.driver.Dialect())
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

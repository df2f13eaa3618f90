package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/storage"
	"identity-store/internal/user/domain"
)

// ListOptions filter a tenant listing. Nil pointer fields mean "no filter".
type ListOptions struct {
	IncludeDeleted bool
	Role           *domain.Role
	Active         *bool
	EmailContains  string
	Page           storage.Page
}

// Page is one window of a tenant listing. TotalCount is the number of rows
// matching the filter regardless of the requested window.
type Page struct {
	Users      []*domain.User
	TotalCount int64
}

// Repository defines persistence for users. Lookups return a nil user when no
// row matches; mutations surface structured faults through the pipeline.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*domain.User, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page, error)
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) (*domain.User, error)
	// SoftDelete marks the user logically deleted. True when a live row was
	// marked; false when it was already deleted or never existed.
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	// HardDelete physically removes the row. True when a row existed.
	HardDelete(ctx context.Context, id uuid.UUID) (bool, error)
	// CreateBatch and UpdateBatch run inside one transaction; all members
	// commit or none do.
	CreateBatch(ctx context.Context, users []*domain.User) ([]*domain.User, error)
	UpdateBatch(ctx context.Context, users []*domain.User) error
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
	ListActiveByRole(ctx context.Context, tenantID uuid.UUID, role domain.Role) ([]*domain.User, error)
	ListCreatedSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*domain.User, error)
	ListByEmailDomain(ctx context.Context, tenantID uuid.UUID, emailDomain string) ([]*domain.User, error)
}

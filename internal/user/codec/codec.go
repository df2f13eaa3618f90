// Package codec maps the user entity to and from its storage record. The field
// renaming table and value coercions here are the single source of truth for
// the users table shape; the query builder reuses them through Mapping.
package codec

import (
	"fmt"

	"identity-store/internal/fault"
	"identity-store/internal/storage"
	"identity-store/internal/user/domain"
)

const Table = "users"

// Columns in canonical select order.
var Columns = []string{
	"id", "tenant_id", "email", "role", "is_active",
	"created_at", "updated_at", "deleted_at",
}

var fieldColumns = map[string]string{
	"id":        "id",
	"tenantID":  "tenant_id",
	"email":     "email",
	"role":      "role",
	"active":    "is_active",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"deletedAt": "deleted_at",
}

// Mapping translates domain field names and values for the query builder.
type Mapping struct{}

func (Mapping) Column(field string) (string, bool) {
	c, ok := fieldColumns[field]
	return c, ok
}

func (Mapping) EncodeValue(field string, v any, d storage.Dialect) (any, error) {
	switch field {
	case "id", "tenantID":
		id, err := storage.UUIDValue(v)
		if err != nil {
			return nil, err
		}
		return storage.EncodeUUID(id), nil
	case "email":
		return storage.StringValue(v)
	case "role":
		var r domain.Role
		switch t := v.(type) {
		case domain.Role:
			r = t
		case string:
			r = domain.Role(t)
		default:
			return nil, fmt.Errorf("%w: role from %T", fault.ErrMalformed, v)
		}
		if !r.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", fault.ErrMalformed, r)
		}
		return string(r), nil
	case "active":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: active from %T", fault.ErrMalformed, v)
		}
		return d.EncodeBool(b), nil
	case "createdAt", "updatedAt", "deletedAt":
		t, err := storage.TimeValue(v)
		if err != nil {
			return nil, err
		}
		return storage.EncodeTime(t), nil
	}
	return nil, fmt.Errorf("%w: unknown user field %q", fault.ErrMalformed, field)
}

// Encode converts the user into its storage record. Total for any user value;
// booleans take the active dialect's encoding.
func Encode(u *domain.User, d storage.Dialect) storage.Record {
	if u == nil {
		return nil
	}
	return storage.Record{
		"id":         storage.EncodeUUID(u.ID),
		"tenant_id":  storage.EncodeUUID(u.TenantID),
		"email":      u.Email,
		"role":       string(u.Role),
		"is_active":  d.EncodeBool(u.Active),
		"created_at": storage.EncodeTime(u.CreatedAt),
		"updated_at": storage.EncodeTimePtr(u.UpdatedAt),
		"deleted_at": storage.EncodeTimePtr(u.DeletedAt),
	}
}

// Decode converts a storage record back into a user. A nil record decodes to a
// nil user with no error.
func Decode(rec storage.Record, d storage.Dialect) (*domain.User, error) {
	if rec == nil {
		return nil, nil
	}
	id, err := storage.UUIDValue(rec["id"])
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	tenantID, err := storage.UUIDValue(rec["tenant_id"])
	if err != nil {
		return nil, fmt.Errorf("user tenant_id: %w", err)
	}
	email, err := storage.StringValue(rec["email"])
	if err != nil {
		return nil, fmt.Errorf("user email: %w", err)
	}
	roleTag, err := storage.StringValue(rec["role"])
	if err != nil {
		return nil, fmt.Errorf("user role: %w", err)
	}
	role := domain.Role(roleTag)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", fault.ErrMalformed, roleTag)
	}
	active, err := d.DecodeBool(rec["is_active"])
	if err != nil {
		return nil, fmt.Errorf("user is_active: %w", err)
	}
	createdAt, err := storage.TimeValue(rec["created_at"])
	if err != nil {
		return nil, fmt.Errorf("user created_at: %w", err)
	}
	updatedAt, err := storage.TimePtrValue(rec["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("user updated_at: %w", err)
	}
	deletedAt, err := storage.TimePtrValue(rec["deleted_at"])
	if err != nil {
		return nil, fmt.Errorf("user deleted_at: %w", err)
	}
	return &domain.User{
		ID:        id,
		TenantID:  tenantID,
		Email:     email,
		Role:      role,
		Active:    active,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}, nil
}

// Package codec maps the session entity to and from its storage record.
package codec

import (
	"fmt"

	"identity-store/internal/fault"
	"identity-store/internal/session/domain"
	"identity-store/internal/storage"
)

const Table = "user_sessions"

// Columns in canonical select order.
var Columns = []string{
	"id", "user_id", "tenant_id", "session_token", "expires_at",
	"created_at", "last_accessed_at", "revoked_at", "user_agent", "ip_address",
}

var fieldColumns = map[string]string{
	"id":             "id",
	"userID":         "user_id",
	"tenantID":       "tenant_id",
	"token":          "session_token",
	"expiresAt":      "expires_at",
	"createdAt":      "created_at",
	"lastAccessedAt": "last_accessed_at",
	"revokedAt":      "revoked_at",
	"userAgent":      "user_agent",
	"ipAddress":      "ip_address",
}

// Mapping translates domain field names and values for the query builder.
type Mapping struct{}

func (Mapping) Column(field string) (string, bool) {
	c, ok := fieldColumns[field]
	return c, ok
}

func (Mapping) EncodeValue(field string, v any, _ storage.Dialect) (any, error) {
	switch field {
	case "id", "userID", "tenantID":
		id, err := storage.UUIDValue(v)
		if err != nil {
			return nil, err
		}
		return storage.EncodeUUID(id), nil
	case "token", "userAgent", "ipAddress":
		return storage.StringValue(v)
	case "expiresAt", "createdAt", "lastAccessedAt", "revokedAt":
		t, err := storage.TimeValue(v)
		if err != nil {
			return nil, err
		}
		return storage.EncodeTime(t), nil
	}
	return nil, fmt.Errorf("%w: unknown session field %q", fault.ErrMalformed, field)
}

// Encode converts the session into its storage record. Empty metadata strings
// are stored as NULL.
func Encode(s *domain.Session, _ storage.Dialect) storage.Record {
	if s == nil {
		return nil
	}
	return storage.Record{
		"id":               storage.EncodeUUID(s.ID),
		"user_id":          storage.EncodeUUID(s.UserID),
		"tenant_id":        storage.EncodeUUID(s.TenantID),
		"session_token":    s.Token,
		"expires_at":       storage.EncodeTime(s.ExpiresAt),
		"created_at":       storage.EncodeTime(s.CreatedAt),
		"last_accessed_at": storage.EncodeTimePtr(s.LastAccessedAt),
		"revoked_at":       storage.EncodeTimePtr(s.RevokedAt),
		"user_agent":       nullIfEmpty(s.UserAgent),
		"ip_address":       nullIfEmpty(s.IPAddress),
	}
}

// Decode converts a storage record back into a session. A nil record decodes
// to a nil session with no error.
func Decode(rec storage.Record, _ storage.Dialect) (*domain.Session, error) {
	if rec == nil {
		return nil, nil
	}
	id, err := storage.UUIDValue(rec["id"])
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	userID, err := storage.UUIDValue(rec["user_id"])
	if err != nil {
		return nil, fmt.Errorf("session user_id: %w", err)
	}
	tenantID, err := storage.UUIDValue(rec["tenant_id"])
	if err != nil {
		return nil, fmt.Errorf("session tenant_id: %w", err)
	}
	token, err := storage.StringValue(rec["session_token"])
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	expiresAt, err := storage.TimeValue(rec["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("session expires_at: %w", err)
	}
	createdAt, err := storage.TimeValue(rec["created_at"])
	if err != nil {
		return nil, fmt.Errorf("session created_at: %w", err)
	}
	lastAccessedAt, err := storage.TimePtrValue(rec["last_accessed_at"])
	if err != nil {
		return nil, fmt.Errorf("session last_accessed_at: %w", err)
	}
	revokedAt, err := storage.TimePtrValue(rec["revoked_at"])
	if err != nil {
		return nil, fmt.Errorf("session revoked_at: %w", err)
	}
	userAgent, err := storage.StringOrEmpty(rec["user_agent"])
	if err != nil {
		return nil, fmt.Errorf("session user_agent: %w", err)
	}
	ipAddress, err := storage.StringOrEmpty(rec["ip_address"])
	if err != nil {
		return nil, fmt.Errorf("session ip_address: %w", err)
	}
	return &domain.Session{
		ID:             id,
		UserID:         userID,
		TenantID:       tenantID,
		Token:          token,
		ExpiresAt:      expiresAt,
		CreatedAt:      createdAt,
		LastAccessedAt: lastAccessedAt,
		RevokedAt:      revokedAt,
		UserAgent:      userAgent,
		IPAddress:      ipAddress,
	}, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

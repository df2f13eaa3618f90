package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/fault"
	"identity-store/internal/session/domain"
	"identity-store/internal/storage"
)

func sampleSession() *domain.Session {
	touched := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Session{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		TenantID:       uuid.New(),
		Token:          "opaque-token-value",
		ExpiresAt:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		LastAccessedAt: &touched,
		UserAgent:      "test-agent/1.0",
		IPAddress:      "192.0.2.10",
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	d := storage.PostgresDialect{}
	s := sampleSession()

	rec := Encode(s, d)
	if rec["session_token"] != s.Token {
		t.Errorf("session_token = %v, want %q", rec["session_token"], s.Token)
	}
	if rec["revoked_at"] != nil {
		t.Errorf("revoked_at = %v, want nil", rec["revoked_at"])
	}

	back, err := Decode(rec, d)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.ID != s.ID || back.UserID != s.UserID || back.TenantID != s.TenantID {
		t.Errorf("ids differ: %+v vs %+v", back, s)
	}
	if back.Token != s.Token {
		t.Errorf("Token = %q, want %q", back.Token, s.Token)
	}
	if !back.ExpiresAt.Equal(s.ExpiresAt) || !back.CreatedAt.Equal(s.CreatedAt) {
		t.Errorf("timestamps differ: %+v vs %+v", back, s)
	}
	if back.LastAccessedAt == nil || !back.LastAccessedAt.Equal(*s.LastAccessedAt) {
		t.Errorf("LastAccessedAt = %v, want %v", back.LastAccessedAt, s.LastAccessedAt)
	}
	if back.RevokedAt != nil {
		t.Errorf("RevokedAt = %v, want nil", back.RevokedAt)
	}
	if back.UserAgent != s.UserAgent || back.IPAddress != s.IPAddress {
		t.Errorf("metadata = %q/%q, want %q/%q", back.UserAgent, back.IPAddress, s.UserAgent, s.IPAddress)
	}
}

func TestEncode_EmptyMetadataIsNull(t *testing.T) {
	s := sampleSession()
	s.UserAgent = ""
	s.IPAddress = ""

	rec := Encode(s, storage.PostgresDialect{})
	if rec["user_agent"] != nil {
		t.Errorf("user_agent = %v, want nil", rec["user_agent"])
	}
	if rec["ip_address"] != nil {
		t.Errorf("ip_address = %v, want nil", rec["ip_address"])
	}

	back, err := Decode(rec, storage.PostgresDialect{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.UserAgent != "" || back.IPAddress != "" {
		t.Errorf("metadata = %q/%q, want empty", back.UserAgent, back.IPAddress)
	}
}

func TestEncodeDecode_Revoked(t *testing.T) {
	s := sampleSession()
	revoked := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	s.RevokedAt = &revoked

	back, err := Decode(Encode(s, storage.PostgresDialect{}), storage.PostgresDialect{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.RevokedAt == nil || !back.RevokedAt.Equal(revoked) {
		t.Errorf("RevokedAt = %v, want %v", back.RevokedAt, revoked)
	}
	if !back.Revoked() {
		t.Error("Revoked() = false after round trip")
	}
}

func TestDecode_NilRecord(t *testing.T) {
	s, err := Decode(nil, storage.PostgresDialect{})
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if s != nil {
		t.Errorf("Decode(nil) = %v, want nil", s)
	}
}

func TestDecode_Malformed(t *testing.T) {
	d := storage.PostgresDialect{}
	base := Encode(sampleSession(), d)

	corrupt := func(col string, v any) storage.Record {
		rec := make(storage.Record, len(base))
		for k, val := range base {
			rec[k] = val
		}
		rec[col] = v
		return rec
	}

	testCases := []struct {
		name string
		rec  storage.Record
	}{
		{"bad id", corrupt("id", "nope")},
		{"bad user_id", corrupt("user_id", 3)},
		{"bad token", corrupt("session_token", 9)},
		{"bad expires_at", corrupt("expires_at", "soon")},
		{"bad last_accessed_at", corrupt("last_accessed_at", 1234)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.rec, d)
			if !errors.Is(err, fault.ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestMapping(t *testing.T) {
	m := Mapping{}

	col, ok := m.Column("token")
	if !ok || col != "session_token" {
		t.Errorf("Column(token) = %q, %v; want session_token, true", col, ok)
	}
	if _, ok := m.Column("password"); ok {
		t.Error("Column(password) should be unknown")
	}

	id := uuid.New()
	v, err := m.EncodeValue("userID", id, storage.PostgresDialect{})
	if err != nil {
		t.Fatalf("EncodeValue(userID): %v", err)
	}
	if v != id.String() {
		t.Errorf("userID = %v, want %q", v, id.String())
	}

	now := time.Now()
	v, err = m.EncodeValue("expiresAt", now, storage.PostgresDialect{})
	if err != nil {
		t.Fatalf("EncodeValue(expiresAt): %v", err)
	}
	if tt, ok := v.(time.Time); !ok || tt.Location() != time.UTC {
		t.Errorf("expiresAt = %v (%T), want UTC time", v, v)
	}

	if _, err := m.EncodeValue("nope", 1, storage.PostgresDialect{}); !errors.Is(err, fault.ErrMalformed) {
		t.Errorf("unknown field error = %v, want ErrMalformed", err)
	}
}

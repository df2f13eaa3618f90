package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/fault"
)

// Pure coercions between domain values and their canonical storage forms.
// Identifiers travel as canonical UUID strings and timestamps as UTC instants;
// decode also accepts the RFC 3339 string form some engines hand back.

func EncodeUUID(id uuid.UUID) any { return id.String() }

func UUIDValue(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: uuid %q: %v", fault.ErrMalformed, id, err)
		}
		return parsed, nil
	case uuid.UUID:
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("%w: uuid from %T", fault.ErrMalformed, v)
}

func StringValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: string from %T", fault.ErrMalformed, v)
	}
	return s, nil
}

// StringOrEmpty reads an optional text column; NULL decodes to "".
func StringOrEmpty(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	return StringValue(v)
}

func EncodeTime(t time.Time) any { return t.UTC() }

// EncodeTimePtr maps a nil pointer to NULL.
func EncodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func TimeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", fault.ErrMalformed, t, err)
		}
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp from %T", fault.ErrMalformed, v)
}

func TimePtrValue(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := TimeValue(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

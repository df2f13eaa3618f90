package storage

import (
	"fmt"
	"strconv"
	"strings"

	"identity-store/internal/fault"
)

// Dialect carries the engine-specific encodings a driver needs: the on-storage
// boolean representation and the bind-parameter placeholder style. Codecs must
// obtain boolean encoding from the active dialect, never hard-code it.
type Dialect interface {
	Name() string
	// EncodeBool returns the storage representation of b for this engine.
	EncodeBool(b bool) any
	// DecodeBool converts a raw column value back to a bool.
	DecodeBool(v any) (bool, error)
	// Placeholder returns the bind placeholder for 1-based parameter n.
	Placeholder(n int) string
}

// PostgresDialect uses native booleans and $n placeholders.
type PostgresDialect struct{}

func (PostgresDialect) Name() string         { return "postgres" }
func (PostgresDialect) EncodeBool(b bool) any { return b }

func (PostgresDialect) DecodeBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch b {
		case "t", "true":
			return true, nil
		case "f", "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: postgres bool from %T(%v)", fault.ErrMalformed, v, v)
}

func (PostgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// MySQLDialect stores booleans as TINYINT 0/1 and uses ? placeholders.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) EncodeBool(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

func (MySQLDialect) DecodeBool(v any) (bool, error) {
	switch b := v.(type) {
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case bool:
		return b, nil
	case []byte:
		return len(b) > 0 && b[0] == '1', nil
	case string:
		return b == "1", nil
	}
	return false, fmt.Errorf("%w: mysql bool from %T(%v)", fault.ErrMalformed, v, v)
}

func (MySQLDialect) Placeholder(int) string { return "?" }

// EscapeLike escapes LIKE wildcards in s so it matches literally inside a
// pattern. Both supported engines treat backslash as the default escape char.
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

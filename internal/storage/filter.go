package storage

import (
	"fmt"
	"sort"

	"identity-store/internal/fault"
)

// Mapping translates domain field names and values into their storage forms.
// Each entity codec exports one, so filters use the same renaming and coercion
// rules as the codec itself.
type Mapping interface {
	// Column returns the storage column for a domain field name.
	Column(field string) (string, bool)
	// EncodeValue coerces a domain value for field into its storage representation.
	EncodeValue(field string, v any, d Dialect) (any, error)
}

// BuildFilter converts a domain-term filter map into a predicate tree. A nil
// value means IS NULL; anything else becomes an equality test. Keys are visited
// in sorted order so the same map always yields a structurally identical tree.
func BuildFilter(m Mapping, d Dialect, filter map[string]any) (Predicate, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	preds := make([]Predicate, 0, len(fields))
	for _, f := range fields {
		col, ok := m.Column(f)
		if !ok {
			return nil, fmt.Errorf("%w: unknown filter field %q", fault.ErrMalformed, f)
		}
		v := filter[f]
		if v == nil {
			preds = append(preds, IsNull{Column: col})
			continue
		}
		enc, err := m.EncodeValue(f, v, d)
		if err != nil {
			return nil, fmt.Errorf("filter field %q: %w", f, err)
		}
		preds = append(preds, Eq{Column: col, Value: enc})
	}
	return AndAll(preds...), nil
}

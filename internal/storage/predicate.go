package storage

// Predicate is a node in the filter tree handed to a driver. Drivers render or
// interpret the tree; nothing here is engine-specific.
type Predicate interface {
	isPredicate()
}

// Eq matches rows where Column equals Value. Value must already be in the
// driver's storage representation (see Mapping.EncodeValue).
type Eq struct {
	Column string
	Value  any
}

// IsNull matches rows where Column is NULL.
type IsNull struct {
	Column string
}

// NotNull matches rows where Column is not NULL.
type NotNull struct {
	Column string
}

// And matches rows satisfying every sub-predicate. Construct with AndAll so a
// vacuous And is never produced.
type And struct {
	Preds []Predicate
}

// Contains matches rows where the string Column contains Substring. The driver
// is responsible for wildcard escaping.
type Contains struct {
	Column    string
	Substring string
}

// HasSuffix matches rows where the string Column ends with Suffix.
type HasSuffix struct {
	Column string
	Suffix string
}

// Gte matches rows where Column >= Value.
type Gte struct {
	Column string
	Value  any
}

// Gt matches rows where Column > Value.
type Gt struct {
	Column string
	Value  any
}

// Lt matches rows where Column < Value.
type Lt struct {
	Column string
	Value  any
}

func (Eq) isPredicate()        {}
func (IsNull) isPredicate()    {}
func (NotNull) isPredicate()   {}
func (And) isPredicate()       {}
func (Contains) isPredicate()  {}
func (HasSuffix) isPredicate() {}
func (Gte) isPredicate()       {}
func (Gt) isPredicate()        {}
func (Lt) isPredicate()        {}

// AndAll combines the non-nil predicates. It returns nil for no operands, the
// operand itself for one, and an And node otherwise, so a missing side never
// yields a one-armed conjunction.
func AndAll(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Preds: kept}
	}
}

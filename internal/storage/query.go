package storage

// Pagination bounds. A requested limit above MaxLimit is clamped, not rejected.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page selects a window of a result set.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default limit, the cap, and floors a negative offset.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Order selects a sort column and direction.
type Order struct {
	Column string
	Desc   bool
}

// DefaultOrder is newest-first by creation time, the module-wide listing default.
var DefaultOrder = Order{Column: "created_at", Desc: true}

// Query describes a row lookup. A zero Order means no explicit ordering; a zero
// Limit means no limit.
type Query struct {
	Table   string
	Columns []string
	Where   Predicate
	OrderBy Order
	Limit   int
	Offset  int
}

// Paged returns a copy of q windowed by the normalized page.
func (q Query) Paged(p Page) Query {
	p = p.Normalize()
	q.Limit = p.Limit
	q.Offset = p.Offset
	return q
}

// StatementKind discriminates data-manipulation statements.
type StatementKind int

const (
	StatementInsert StatementKind = iota + 1
	StatementUpdate
	StatementDelete
)

// Statement describes one data-manipulation operation.
type Statement struct {
	Kind   StatementKind
	Table  string
	Values Record // inserted values, or the update's SET clause
	Where  Predicate
}

// Insert builds an insert of values into table.
func Insert(table string, values Record) Statement {
	return Statement{Kind: StatementInsert, Table: table, Values: values}
}

// Update builds an update setting values on rows matching where.
func Update(table string, set Record, where Predicate) Statement {
	return Statement{Kind: StatementUpdate, Table: table, Values: set, Where: where}
}

// Delete builds a removal of rows matching where.
func Delete(table string, where Predicate) Statement {
	return Statement{Kind: StatementDelete, Table: table, Where: where}
}

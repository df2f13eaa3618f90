// Package storage defines the driver contract the repositories are written
// against: raw records, a predicate tree, query/statement shapes, and the
// dialect capability that carries engine-specific encodings. Concrete engines
// implement Driver; the repositories never touch an engine directly.
package storage

import "context"

// Record is a raw storage row keyed by column name. Absent rows are represented
// by a nil Record, never an error.
type Record map[string]any

// Driver executes queries and statements against one storage engine.
// Implementations: the SQL driver in this package and the in-memory engine in
// the memory subpackage.
type Driver interface {
	// QueryOne runs q and returns the first row, or nil when no row matches.
	QueryOne(ctx context.Context, q Query) (Record, error)
	// Query runs q and returns the matching rows in query order.
	Query(ctx context.Context, q Query) ([]Record, error)
	// Count returns the number of rows matching q's predicate. Pagination and
	// ordering on q are ignored. A count that cannot be produced is an error,
	// never a silent zero.
	Count(ctx context.Context, q Query) (int64, error)
	// Exec runs a data-manipulation statement and returns the affected row count.
	Exec(ctx context.Context, st Statement) (int64, error)
	// InTx runs fn with a transaction-scoped driver. Any error from fn rolls the
	// transaction back; nil commits. No partial writes are visible outside fn.
	InTx(ctx context.Context, fn func(Driver) error) error
	// Dialect reports the active engine's encoding capabilities.
	Dialect() Dialect
}

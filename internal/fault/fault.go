// Package fault defines the structured fault model for repository operations and
// the single classification point from raw storage errors to fault kinds.
package fault

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind identifies the class of a fault.
type Kind string

const (
	// NotFound means the target row of a mutation does not exist.
	NotFound Kind = "not_found"
	// Conflict means a uniqueness invariant would be violated (e.g. duplicate tenant+email).
	Conflict Kind = "conflict"
	// BatchAborted means a member of a batch failed and the whole batch was rolled back.
	BatchAborted Kind = "batch_aborted"
	// Transient means a connection/timeout-class storage failure eligible for retry.
	Transient Kind = "transient"
	// MalformedInput means a codec met a value it cannot coerce; a contract error, never retried.
	MalformedInput Kind = "malformed_input"
	// Internal is any storage failure not covered by the kinds above.
	Internal Kind = "internal"
)

// Sentinels used by core logic and drivers to signal a kind through the error chain.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("uniqueness conflict")
	ErrBatchAborted = errors.New("batch aborted")
	ErrMalformed    = errors.New("malformed value")
)

// Fault is the structured error surfaced by the operation pipeline. It carries the
// operation tag and its parameters so callers can inspect and react (404 vs 409).
type Fault struct {
	Kind   Kind
	Op     string
	Params map[string]any
	Err    error
}

func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString("op ")
	b.WriteString(f.Op)
	b.WriteString(": ")
	b.WriteString(string(f.Kind))
	if len(f.Params) > 0 {
		keys := make([]string, 0, len(f.Params))
		for k := range f.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, f.Params[k])
		}
		b.WriteString(")")
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Fault) Unwrap() error { return f.Err }

// Wrap converts err into a *Fault tagged with op and params. If err already is a
// *Fault it is returned unchanged so nesting pipelines never double-wrap.
func Wrap(op string, params map[string]any, err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: Classify(err), Op: op, Params: params, Err: err}
}

// Classify maps a raw error to a fault kind. Sentinels win over driver inspection
// so core logic can force a kind regardless of the underlying engine.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBatchAborted):
		return BatchAborted
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrConflict):
		return Conflict
	case errors.Is(err, ErrMalformed):
		return MalformedInput
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return Conflict
		case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
			return Transient
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization failure, deadlock
			return Transient
		case pgErr.Code == "57014" || pgErr.Code == "55P03": // query canceled, lock not available
			return Transient
		}
		return Internal
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		return Transient
	case errors.As(err, &netErr) && netErr.Timeout():
		return Transient
	}
	return Internal
}

// KindOf returns the kind carried by err, classifying raw errors that were never
// wrapped. Returns "" for nil.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return Classify(err)
}

func IsNotFound(err error) bool     { return KindOf(err) == NotFound }
func IsConflict(err error) bool     { return KindOf(err) == Conflict }
func IsBatchAborted(err error) bool { return KindOf(err) == BatchAborted }
func IsTransient(err error) bool    { return KindOf(err) == Transient }

// Package memory implements the storage driver contract against in-process
// tables. It interprets the same predicate trees the SQL driver renders, with
// snapshot-rollback transactions and unique-index emulation, which makes it
// both a usable second engine and the backend the repository tests run on.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"identity-store/internal/fault"
	"identity-store/internal/storage"
)

// Unique declares a uniqueness constraint over Columns. When OnlyWhereNull is
// set, only rows where that column is NULL participate (partial-index
// semantics, e.g. soft-deleted rows exempt from the tenant+email constraint).
type Unique struct {
	Columns       []string
	OnlyWhereNull string
}

type table struct {
	rows    []storage.Record
	uniques []Unique
}

// Driver is an in-memory storage engine. Safe for concurrent use.
type Driver struct {
	mu      sync.Mutex
	dialect storage.Dialect
	tables  map[string]*table
}

// New returns an empty in-memory driver using dialect's value encodings. A nil
// dialect defaults to Postgres encodings.
func New(dialect storage.Dialect) *Driver {
	if dialect == nil {
		dialect = storage.PostgresDialect{}
	}
	return &Driver{dialect: dialect, tables: map[string]*table{}}
}

// CreateTable registers a table and its uniqueness constraints. Creating an
// existing table replaces its constraints and keeps its rows.
func (d *Driver) CreateTable(name string, uniques ...Unique) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tables[name]
	if t == nil {
		t = &table{}
		d.tables[name] = t
	}
	t.uniques = uniques
}

func (d *Driver) Dialect() storage.Dialect { return d.dialect }

func (d *Driver) QueryOne(ctx context.Context, q storage.Query) (storage.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q.Limit = 1
	recs, err := d.query(q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (d *Driver) Query(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.query(q)
}

func (d *Driver) Count(ctx context.Context, q storage.Query) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	matched, err := d.matchRows(q.Table, q.Where)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (d *Driver) Exec(ctx context.Context, st storage.Statement) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exec(st)
}

// InTx serializes the whole transaction under the driver lock and restores a
// snapshot when fn fails, so partial writes are never observable.
func (d *Driver) InTx(ctx context.Context, fn func(storage.Driver) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.snapshot()
	if err := fn(&txDriver{d: d}); err != nil {
		d.restore(snap)
		return err
	}
	return nil
}

// txDriver runs against the already-locked driver.
type txDriver struct{ d *Driver }

func (t *txDriver) Dialect() storage.Dialect { return t.d.dialect }

func (t *txDriver) QueryOne(_ context.Context, q storage.Query) (storage.Record, error) {
	q.Limit = 1
	recs, err := t.d.query(q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (t *txDriver) Query(_ context.Context, q storage.Query) ([]storage.Record, error) {
	return t.d.query(q)
}

func (t *txDriver) Count(_ context.Context, q storage.Query) (int64, error) {
	matched, err := t.d.matchRows(q.Table, q.Where)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (t *txDriver) Exec(_ context.Context, st storage.Statement) (int64, error) {
	return t.d.exec(st)
}

func (t *txDriver) InTx(_ context.Context, fn func(storage.Driver) error) error {
	// Nested transactions join the enclosing one.
	return fn(t)
}

func (d *Driver) tableFor(name string) *table {
	t := d.tables[name]
	if t == nil {
		t = &table{}
		d.tables[name] = t
	}
	return t
}

func (d *Driver) query(q storage.Query) ([]storage.Record, error) {
	matched, err := d.matchRows(q.Table, q.Where)
	if err != nil {
		return nil, err
	}
	if q.OrderBy.Column != "" {
		col, desc := q.OrderBy.Column, q.OrderBy.Desc
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][col], matched[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]storage.Record, len(matched))
	for i, rec := range matched {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func (d *Driver) matchRows(tableName string, p storage.Predicate) ([]storage.Record, error) {
	t := d.tableFor(tableName)
	var matched []storage.Record
	for _, rec := range t.rows {
		ok, err := match(rec, p)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func (d *Driver) exec(st storage.Statement) (int64, error) {
	t := d.tableFor(st.Table)
	switch st.Kind {
	case storage.StatementInsert:
		rec := copyRecord(st.Values)
		if err := t.checkUnique(rec, -1); err != nil {
			return 0, err
		}
		t.rows = append(t.rows, rec)
		return 1, nil

	case storage.StatementUpdate:
		if st.Where == nil {
			return 0, fmt.Errorf("%w: update on %s without predicate", fault.ErrMalformed, st.Table)
		}
		var n int64
		for i, rec := range t.rows {
			ok, err := match(rec, st.Where)
			if err != nil {
				return 0, err
			}
			if !ok {
				continue
			}
			updated := copyRecord(rec)
			for c, v := range st.Values {
				updated[c] = v
			}
			if err := t.checkUnique(updated, i); err != nil {
				return 0, err
			}
			t.rows[i] = updated
			n++
		}
		return n, nil

	case storage.StatementDelete:
		if st.Where == nil {
			return 0, fmt.Errorf("%w: delete on %s without predicate", fault.ErrMalformed, st.Table)
		}
		kept := t.rows[:0]
		var n int64
		for _, rec := range t.rows {
			ok, err := match(rec, st.Where)
			if err != nil {
				return 0, err
			}
			if ok {
				n++
				continue
			}
			kept = append(kept, rec)
		}
		t.rows = kept
		return n, nil
	}
	return 0, fmt.Errorf("%w: unknown statement kind %d", fault.ErrMalformed, st.Kind)
}

func (t *table) checkUnique(candidate storage.Record, skipIdx int) error {
	for _, u := range t.uniques {
		if u.OnlyWhereNull != "" && candidate[u.OnlyWhereNull] != nil {
			continue
		}
		for i, rec := range t.rows {
			if i == skipIdx {
				continue
			}
			if u.OnlyWhereNull != "" && rec[u.OnlyWhereNull] != nil {
				continue
			}
			same := true
			for _, c := range u.Columns {
				if compareValues(rec[c], candidate[c]) != 0 {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("%w: duplicate (%s)", fault.ErrConflict, strings.Join(u.Columns, ", "))
			}
		}
	}
	return nil
}

func (d *Driver) snapshot() map[string][]storage.Record {
	snap := make(map[string][]storage.Record, len(d.tables))
	for name, t := range d.tables {
		rows := make([]storage.Record, len(t.rows))
		for i, rec := range t.rows {
			rows[i] = copyRecord(rec)
		}
		snap[name] = rows
	}
	return snap
}

func (d *Driver) restore(snap map[string][]storage.Record) {
	for name, rows := range snap {
		d.tableFor(name).rows = rows
	}
	for name, t := range d.tables {
		if _, ok := snap[name]; !ok {
			t.rows = nil
		}
	}
}

func match(rec storage.Record, p storage.Predicate) (bool, error) {
	if p == nil {
		return true, nil
	}
	switch n := p.(type) {
	case storage.Eq:
		if rec[n.Column] == nil {
			return false, nil
		}
		return compareValues(rec[n.Column], n.Value) == 0, nil
	case storage.IsNull:
		return rec[n.Column] == nil, nil
	case storage.NotNull:
		return rec[n.Column] != nil, nil
	case storage.Contains:
		s, ok := rec[n.Column].(string)
		return ok && strings.Contains(s, n.Substring), nil
	case storage.HasSuffix:
		s, ok := rec[n.Column].(string)
		return ok && strings.HasSuffix(s, n.Suffix), nil
	case storage.Gte:
		return rec[n.Column] != nil && compareValues(rec[n.Column], n.Value) >= 0, nil
	case storage.Gt:
		return rec[n.Column] != nil && compareValues(rec[n.Column], n.Value) > 0, nil
	case storage.Lt:
		return rec[n.Column] != nil && compareValues(rec[n.Column], n.Value) < 0, nil
	case storage.And:
		for _, sub := range n.Preds {
			ok, err := match(rec, sub)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("%w: unknown predicate %T", fault.ErrMalformed, p)
}

// compareValues orders two storage values of the same logical type. nil sorts
// before everything else.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func copyRecord(rec storage.Record) storage.Record {
	out := make(storage.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

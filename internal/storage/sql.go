package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"identity-store/internal/fault"
)

// identPattern is the only shape accepted for dynamic identifiers (columns,
// tables). Everything else is rejected before it reaches the engine.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type sqlRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLDriver implements Driver over database/sql for the dialects in this
// package. The zero value is not usable; construct with NewSQLDriver.
type SQLDriver struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect Dialect
}

// NewSQLDriver returns a driver executing against db with the given dialect.
func NewSQLDriver(db *sql.DB, d Dialect) *SQLDriver {
	return &SQLDriver{db: db, dialect: d}
}

func (s *SQLDriver) Dialect() Dialect { return s.dialect }

func (s *SQLDriver) runner() sqlRunner {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// QueryOne runs q limited to one row and returns it, or nil when absent.
func (s *SQLDriver) QueryOne(ctx context.Context, q Query) (Record, error) {
	q.Limit = 1
	recs, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *SQLDriver) Query(ctx context.Context, q Query) ([]Record, error) {
	stmt, args, err := s.buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.runner().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = vals[i]
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Table, err)
	}
	return out, nil
}

// Count runs a COUNT(*) with q's predicate. It fails loudly when the engine
// produces no countable row; a missing count is never reported as zero.
func (s *SQLDriver) Count(ctx context.Context, q Query) (int64, error) {
	if err := validIdent(q.Table); err != nil {
		return 0, err
	}
	var b strings.Builder
	args := make([]any, 0, 4)
	fmt.Fprintf(&b, "SELECT COUNT(*) FROM %s", q.Table)
	if q.Where != nil {
		clause, err := renderPredicate(q.Where, s.dialect, &args)
		if err != nil {
			return 0, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(clause)
	}
	rows, err := s.runner().QueryContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("count %s: %w", q.Table, err)
		}
		return 0, fmt.Errorf("count %s: no count row returned", q.Table)
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	return n, rows.Err()
}

func (s *SQLDriver) Exec(ctx context.Context, st Statement) (int64, error) {
	stmt, args, err := s.buildStatement(st)
	if err != nil {
		return 0, err
	}
	res, err := s.runner().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("exec %s: %w", st.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("exec %s: rows affected: %w", st.Table, err)
	}
	return n, nil
}

// InTx runs fn inside a transaction. A driver already inside a transaction
// joins it instead of opening a nested one.
func (s *SQLDriver) InTx(ctx context.Context, fn func(Driver) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txDriver := &SQLDriver{db: s.db, tx: tx, dialect: s.dialect}
	if err := fn(txDriver); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLDriver) buildSelect(q Query) (string, []any, error) {
	if err := validIdent(q.Table); err != nil {
		return "", nil, err
	}
	cols := "*"
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if err := validIdent(c); err != nil {
				return "", nil, err
			}
		}
		cols = strings.Join(q.Columns, ", ")
	}
	var b strings.Builder
	args := make([]any, 0, 8)
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, q.Table)
	if q.Where != nil {
		clause, err := renderPredicate(q.Where, s.dialect, &args)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(clause)
	}
	if q.OrderBy.Column != "" {
		if err := validIdent(q.OrderBy.Column); err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if q.OrderBy.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.OrderBy.Column, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
		if q.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", q.Offset)
		}
	}
	return b.String(), args, nil
}

func (s *SQLDriver) buildStatement(st Statement) (string, []any, error) {
	if err := validIdent(st.Table); err != nil {
		return "", nil, err
	}
	switch st.Kind {
	case StatementInsert:
		cols, err := sortedColumns(st.Values)
		if err != nil {
			return "", nil, err
		}
		args := make([]any, 0, len(cols))
		phs := make([]string, 0, len(cols))
		for _, c := range cols {
			args = append(args, st.Values[c])
			phs = append(phs, s.dialect.Placeholder(len(args)))
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			st.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
		return stmt, args, nil

	case StatementUpdate:
		if st.Where == nil {
			return "", nil, fmt.Errorf("%w: update on %s without predicate", fault.ErrMalformed, st.Table)
		}
		cols, err := sortedColumns(st.Values)
		if err != nil {
			return "", nil, err
		}
		args := make([]any, 0, len(cols)+4)
		sets := make([]string, 0, len(cols))
		for _, c := range cols {
			args = append(args, st.Values[c])
			sets = append(sets, fmt.Sprintf("%s = %s", c, s.dialect.Placeholder(len(args))))
		}
		clause, err := renderPredicate(st.Where, s.dialect, &args)
		if err != nil {
			return "", nil, err
		}
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", st.Table, strings.Join(sets, ", "), clause)
		return stmt, args, nil

	case StatementDelete:
		if st.Where == nil {
			return "", nil, fmt.Errorf("%w: delete on %s without predicate", fault.ErrMalformed, st.Table)
		}
		args := make([]any, 0, 4)
		clause, err := renderPredicate(st.Where, s.dialect, &args)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("DELETE FROM %s WHERE %s", st.Table, clause), args, nil
	}
	return "", nil, fmt.Errorf("%w: unknown statement kind %d", fault.ErrMalformed, st.Kind)
}

func renderPredicate(p Predicate, d Dialect, args *[]any) (string, error) {
	bind := func(v any) string {
		*args = append(*args, v)
		return d.Placeholder(len(*args))
	}
	switch n := p.(type) {
	case Eq:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", n.Column, bind(n.Value)), nil
	case IsNull:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return n.Column + " IS NULL", nil
	case NotNull:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return n.Column + " IS NOT NULL", nil
	case Contains:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s LIKE %s", n.Column, bind("%"+EscapeLike(n.Substring)+"%")), nil
	case HasSuffix:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s LIKE %s", n.Column, bind("%"+EscapeLike(n.Suffix))), nil
	case Gte:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s >= %s", n.Column, bind(n.Value)), nil
	case Gt:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s > %s", n.Column, bind(n.Value)), nil
	case Lt:
		if err := validIdent(n.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s < %s", n.Column, bind(n.Value)), nil
	case And:
		parts := make([]string, 0, len(n.Preds))
		for _, sub := range n.Preds {
			clause, err := renderPredicate(sub, d, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, clause)
		}
		if len(parts) == 0 {
			return "", fmt.Errorf("%w: empty AND predicate", fault.ErrMalformed)
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	}
	return "", fmt.Errorf("%w: unknown predicate %T", fault.ErrMalformed, p)
}

func sortedColumns(values Record) ([]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: statement without values", fault.ErrMalformed)
	}
	cols := make([]string, 0, len(values))
	for c := range values {
		if err := validIdent(c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	// Deterministic statement text for identical records.
	sort.Strings(cols)
	return cols, nil
}

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: invalid identifier %q", fault.ErrMalformed, name)
	}
	return nil
}

// Package loadtest provides an in-memory load.DB. Its CopyFrom drains the
// pgx.CopyFromSource it is given, enforces table existence, column existence
// and NOT NULL, and reports violations with the SQLSTATE codes Postgres would
// use. Rows are staged until Commit.
package loadtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pq2pg/internal/load"
)

// Copy records one CopyFrom call.
type Copy struct {
	Table   pgx.Identifier
	Columns []string
}

// DB is a fake destination database. The zero value is not usable; call New.
type DB struct {
	mu     sync.Mutex
	tables map[string][]load.ColumnInfo
	rows   map[string][][]any

	// BeginErr, when set, is returned by every BeginTx.
	BeginErr error
	// CopyErr, when set, is returned by every CopyFrom after the source
	// has been drained.
	CopyErr error

	Copies    []Copy
	Rollbacks int
}

// New returns an empty DB.
func New() *DB {
	return &DB{tables: map[string][]load.ColumnInfo{}, rows: map[string][][]any{}}
}

// Define creates table (unquoted, optionally schema-qualified) with cols.
func (d *DB) Define(table string, cols ...load.ColumnInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[table] = cols
}

// Values returns the committed rows of table in load order, as the driver
// values the loader handed over. NULL is nil.
func (d *DB) Values(table string) [][]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]any(nil), d.rows[table]...)
}

// Rows returns the committed rows of table rendered as text. NULL is nil.
func (d *DB) Rows(table string) [][]*string {
	vals := d.Values(table)
	out := make([][]*string, len(vals))
	for i, row := range vals {
		out[i] = make([]*string, len(row))
		for j, v := range row {
			if v == nil {
				continue
			}
			s := render(v)
			out[i][j] = &s
		}
	}
	return out
}

func render(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func (d *DB) BeginTx(context.Context) (load.Tx, error) {
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	return &tx{db: d, staged: map[string][][]any{}}, nil
}

func (d *DB) Columns(_ context.Context, table string) ([]load.ColumnInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cols, ok := d.tables[table]
	if !ok {
		return nil, undefinedTable(table)
	}
	return cols, nil
}

func (d *DB) Close() {}

type tx struct {
	db     *DB
	staged map[string][][]any
	done   bool
}

func (t *tx) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	name := strings.Join(table, ".")

	t.db.mu.Lock()
	t.db.Copies = append(t.db.Copies, Copy{Table: table, Columns: cols})
	schema, ok := t.db.tables[name]
	t.db.mu.Unlock()
	if !ok {
		return 0, undefinedTable(name)
	}

	notNull := make([]bool, len(cols))
	for i, c := range cols {
		found := false
		for _, sc := range schema {
			if sc.Name == c {
				found, notNull[i] = true, sc.NotNull
				break
			}
		}
		if !found {
			return 0, &pgconn.PgError{Code: "42703",
				Message: fmt.Sprintf("column %q of relation %q does not exist", c, name)}
		}
	}

	var rows [][]any
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		if len(vals) != len(cols) {
			return 0, fmt.Errorf("expected %d values, got %d values", len(cols), len(vals))
		}
		for i, v := range vals {
			if v == nil && notNull[i] {
				return 0, &pgconn.PgError{Code: "23502",
					Message: fmt.Sprintf("null value in column %q of relation %q violates not-null constraint", cols[i], name)}
			}
		}
		rows = append(rows, append([]any(nil), vals...))
	}
	if err := src.Err(); err != nil {
		return 0, err
	}
	if t.db.CopyErr != nil {
		return 0, t.db.CopyErr
	}
	t.staged[name] = append(t.staged[name], rows...)
	return int64(len(rows)), nil
}

func (t *tx) Commit(context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for table, rows := range t.staged {
		t.db.rows[table] = append(t.db.rows[table], rows...)
	}
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.db.mu.Lock()
	t.db.Rollbacks++
	t.db.mu.Unlock()
	return nil
}

func undefinedTable(name string) error {
	return &pgconn.PgError{Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", name)}
}

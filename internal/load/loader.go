// Package load writes resolved rows into a Postgres table with COPY.
//
// Each call to Load is one transaction: either every row of the source is
// committed or none is. Rows travel over the binary COPY protocol as typed
// values, so names containing spaces, upper case, quotes or reserved words
// and text containing tabs, newlines or backslashes need no escaping.
// Before a file is copied, the declared type of every field is checked
// against its destination column; see compat.go.
package load

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pq2pg/internal/resolve"
)

// RowSource is a single-pass sequence of rows sharing one column list.
// *resolve.Rows implements it.
type RowSource interface {
	Columns() []string
	// Types declares, per column, the Kind of every non-null value.
	// KindNull means the column is not checked.
	Types() []resolve.ColumnType
	Next() bool
	Row() resolve.Row
	Err() error
}

// Loader bulk-loads row sources into a destination DB.
type Loader struct {
	db DB
}

// New returns a Loader writing through db.
func New(db DB) *Loader { return &Loader{db: db} }

// Load copies every row of src into table inside one transaction and returns
// the number of rows committed.
//
// A failure of src itself (for example a malformed file discovered half way)
// is returned unchanged after the transaction is rolled back. Destination
// failures, including fields whose type does not fit their column, are
// returned as *Error.
func (l *Loader) Load(ctx context.Context, src RowSource, table string) (int64, error) {
	log := zerolog.Ctx(ctx).With().Str("component", "load").Str("table", table).Logger()
	start := time.Now()

	cols := src.Columns()
	if len(cols) == 0 {
		return 0, &Error{Kind: SchemaMismatch, Table: table, Message: "no destination columns"}
	}
	info, err := l.CheckColumns(ctx, table, cols)
	if err != nil {
		return 0, err
	}
	if err := checkTypes(table, info, src.Types()); err != nil {
		log.Warn().Err(err).Msg("type check failed")
		return 0, err
	}

	tx, err := l.db.BeginTx(ctx)
	if err != nil {
		return 0, classify(table, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Debug().Err(rbErr).Msg("rollback")
			}
		}
	}()

	cs := &copySource{src: src, table: table, cols: cols}
	n, copyErr := tx.CopyFrom(ctx, splitFQN(table), cols, cs)

	if err := src.Err(); err != nil {
		log.Warn().Err(err).Msg("row source failed, rolled back")
		return 0, err
	}
	if cs.err != nil {
		log.Warn().Err(cs.err).Msg("inconsistent row, rolled back")
		return 0, cs.err
	}
	if copyErr != nil {
		err := classify(table, copyErr)
		log.Warn().Err(err).Msg("copy rejected, rolled back")
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify(table, err)
	}
	committed = true

	log.Debug().Int64("rows", n).Dur("took", time.Since(start)).Msg("copy committed")
	return n, nil
}

// copySource adapts a RowSource to pgx.CopyFromSource. A row whose shape
// differs from cols stops the copy and is kept in err.
type copySource struct {
	src   RowSource
	table string
	cols  []string
	err   error
}

func (c *copySource) Next() bool { return c.err == nil && c.src.Next() }

func (c *copySource) Values() ([]any, error) {
	row := c.src.Row()
	if err := sameShape(c.table, c.cols, row); err != nil {
		c.err = err
		return nil, err
	}
	vals := make([]any, len(row.Values))
	for i, v := range row.Values {
		vals[i] = v.Any()
	}
	return vals, nil
}

func (c *copySource) Err() error { return c.src.Err() }

func sameShape(table string, cols []string, row resolve.Row) error {
	if len(row.Values) != len(cols) {
		return &Error{Kind: SchemaMismatch, Table: table,
			Message: fmt.Sprintf("row has %d values for %d columns", len(row.Values), len(cols))}
	}
	if row.Columns != nil && !slices.Equal(row.Columns, cols) {
		return &Error{Kind: SchemaMismatch, Table: table,
			Message: "row columns " + strings.Join(row.Columns, ",") + " differ from " + strings.Join(cols, ",")}
	}
	return nil
}

// CheckColumns verifies that table exists and has every column in cols. The
// CLI runs it once before the first file; Load repeats it per file.
func (l *Loader) CheckColumns(ctx context.Context, table string, cols []string) ([]ColumnInfo, error) {
	info, err := l.db.Columns(ctx, table)
	if err != nil {
		return nil, classify(table, err)
	}
	if len(info) == 0 {
		return nil, &Error{Kind: SchemaMismatch, Table: table, Message: "table has no columns"}
	}
	have := make(map[string]bool, len(info))
	for _, c := range info {
		have[c.Name] = true
	}
	var missing []string
	for _, c := range cols {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return info, &Error{Kind: SchemaMismatch, Table: table,
			Message: "missing columns: " + strings.Join(missing, ", ")}
	}
	return info, nil
}

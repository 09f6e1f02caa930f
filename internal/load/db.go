package load

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DB is the destination database as seen by the Loader.
type DB interface {
	// BeginTx opens a transaction. Every file is loaded in its own.
	BeginTx(ctx context.Context) (Tx, error)
	// Columns describes the live columns of table, in attribute order.
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)
	Close()
}

// Tx is one open transaction.
type Tx interface {
	// CopyFrom copies every row of src into cols of table and returns the
	// number of rows the server accepted.
	CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ColumnInfo is one column of a destination table.
type ColumnInfo struct {
	Name    string
	Type    string // format_type() rendering, e.g. "timestamp with time zone"
	NotNull bool
}

package load

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gitlab.com/tozd/go/errors"
)

const columnsQuery = `
SELECT a.attname, format_type(a.atttypid, a.atttypmod), a.attnotnull
FROM pg_attribute a
WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

// PgDB is a DB backed by a pgx connection pool.
type PgDB struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and checks that the server answers. A failure
// here is a ConnectionError.
func Connect(ctx context.Context, dsn string) (*PgDB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &Error{Kind: ConnectionError, Err: errors.Errorf("pgxpool: %w", err)}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &Error{Kind: ConnectionError, Err: errors.Errorf("ping: %w", err)}
	}
	return &PgDB{pool: pool}, nil
}

func (d *PgDB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (d *PgDB) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := d.pool.Query(ctx, columnsQuery, pgFQN(table))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ColumnInfo, error) {
		var c ColumnInfo
		err := row.Scan(&c.Name, &c.Type, &c.NotNull)
		return c, err
	})
}

func (d *PgDB) Close() { d.pool.Close() }

type pgTx struct {
	tx pgx.Tx
}

// CopyFrom uses the binary COPY protocol. Values are encoded by pgx for the
// OID of each destination column.
func (t *pgTx) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return t.tx.CopyFrom(ctx, table, cols, src)
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

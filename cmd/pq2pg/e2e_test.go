package main

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pq2pg/internal/worklist"
)

// TestE2E_Postgres runs the CLI against a real server when TEST_PG_DSN is
// set. The DSN and table reach the config through PQ2PG_* overrides.
func TestE2E_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(context.Background()) })
	_, err = conn.Exec(ctx, `DROP TABLE IF EXISTS public.pq2pg_e2e`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `CREATE TABLE public.pq2pg_e2e (order_id bigint NOT NULL, description text NOT NULL)`)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = conn.Exec(context.Background(), `DROP TABLE IF EXISTS public.pq2pg_e2e`) })

	c := newCLI(t, "")
	connectFn = realConnect
	t.Setenv("PQ2PG_DB_CONN_STR", dsn)
	t.Setenv("PQ2PG_DB_TABLE_NAME", "public.pq2pg_e2e")

	c.object("a.parquet", order{1, strp("tab\there")}, order{2, strp(`back\slash`)})
	c.object("b.parquet", order{3, strp("ok")}, order{4, nil})
	c.object("c.parquet", order{5, strp("line\nbreak")})

	code, out, stderr := c.exec("run")
	assert.Equal(t, 1, code, stderr)
	assert.Contains(t, out, "FAILED b.parquet: constraint violation on public.pq2pg_e2e")
	assert.Contains(t, out, "(23502)")

	rows, err := conn.Query(ctx, `SELECT order_id, description FROM public.pq2pg_e2e ORDER BY order_id`)
	require.NoError(t, err)
	type rec struct {
		ID   int64
		Desc string
	}
	got, err := pgx.CollectRows(rows, pgx.RowToStructByPos[rec])
	require.NoError(t, err)
	assert.Equal(t, []rec{{1, "tab\there"}, {2, `back\slash`}, {5, "line\nbreak"}}, got,
		"b is absent entirely; its valid first row was rolled back")

	assert.Equal(t, map[string]worklist.State{"b.parquet": worklist.StateFailed}, c.states())
}

package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAndFetch(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for key, body := range map[string]string{
		"b1/exports/a.parquet": "AAA",
		"b1/exports/z.parquet": "ZZ",
		"b1/top.parquet":       "T",
	} {
		p := filepath.Join(root, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}

	s := New(root)
	ctx := context.Background()

	keys, err := s.List(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/a.parquet", "exports/z.parquet", "top.parquet"}, keys)

	out, err := os.Create(filepath.Join(t.TempDir(), "dst"))
	require.NoError(t, err)
	defer out.Close()
	n, err := s.Fetch(ctx, "b1", "exports/a.parquet", out)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	got, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, "AAA", string(got))

	_, err = s.Fetch(ctx, "b1", "missing", out)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = s.List(ctx, "nope")
	assert.Error(t, err)
}

package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"pq2pg/internal/worklist"
)

// fakeStore serves in-memory objects and tracks peak concurrency.
type fakeStore struct {
	objects map[string]string
	delay   time.Duration

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    atomic.Int32
}

func (f *fakeStore) List(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeStore) Fetch(ctx context.Context, _ string, key string, w io.WriterAt) (int64, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	time.Sleep(f.delay)
	body, ok := f.objects[key]
	if !ok {
		return 0, fmt.Errorf("no such key %q", key)
	}
	n, err := w.WriteAt([]byte(body), 0)
	return int64(n), err
}

func batchOf(keys ...string) worklist.BatchRequest {
	return worklist.BatchRequest{ID: uuid.New(), Keys: keys}
}

func TestDownload_OrderAndIsolation(t *testing.T) {
	t.Parallel()
	store := &fakeStore{objects: map[string]string{
		"exports/a.parquet": "alpha",
		"exports/c.parquet": "gamma",
	}}
	dir := t.TempDir()
	d, err := New(store, "bkt", dir, 3)
	require.NoError(t, err)

	res := d.Download(context.Background(), batchOf("exports/a.parquet", "exports/b.parquet", "exports/c.parquet"))
	require.Len(t, res, 3)

	assert.Equal(t, "exports/a.parquet", res[0].Key)
	require.NoError(t, res[0].Err)
	assert.Equal(t, filepath.Join(dir, "exports", "a.parquet"), res[0].Artifact.Path)
	assert.EqualValues(t, 5, res[0].Artifact.Size)
	assert.Equal(t, xxh3.HashString("alpha"), res[0].Artifact.Checksum)

	assert.Equal(t, "exports/b.parquet", res[1].Key)
	var derr *Error
	require.ErrorAs(t, res[1].Err, &derr)
	assert.Equal(t, "exports/b.parquet", derr.Key)

	require.NoError(t, res[2].Err)
	got, err := os.ReadFile(res[2].Artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "gamma", string(got))

	// No partial file is left behind for the failed key.
	entries, err := os.ReadDir(filepath.Join(dir, "exports"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.parquet", "c.parquet"}, names)
}

func TestDownload_ConcurrencyBound(t *testing.T) {
	t.Parallel()
	objects := map[string]string{}
	var keys []string
	for i := 0; i < 8; i++ {
		k := fmt.Sprintf("k%d", i)
		objects[k] = k
		keys = append(keys, k)
	}
	store := &fakeStore{objects: objects, delay: 20 * time.Millisecond}
	d, err := New(store, "bkt", t.TempDir(), 3)
	require.NoError(t, err)

	res := d.Download(context.Background(), batchOf(keys...))
	for _, r := range res {
		require.NoError(t, r.Err)
	}
	assert.EqualValues(t, 8, store.calls.Load())
	assert.LessOrEqual(t, store.peak, 3)
	assert.GreaterOrEqual(t, store.peak, 2)
}

func TestLocalPath(t *testing.T) {
	t.Parallel()
	d, err := New(&fakeStore{}, "bkt", "/scratch", 1)
	require.NoError(t, err)

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a.parquet", want: "/scratch/a.parquet"},
		{key: "x/y/z.parquet", want: "/scratch/x/y/z.parquet"},
		{key: "x/./y.parquet", wantErr: true},
		{key: "./a.parquet", wantErr: true},
		{key: "a//b.parquet", wantErr: true},
		{key: "x/../a.parquet", wantErr: true},
		{key: "", wantErr: true},
		{key: "dir/", wantErr: true},
		{key: "../etc/passwd", wantErr: true},
		{key: "a/../../b", wantErr: true},
		{key: "/abs.parquet", wantErr: true},
	}
	for _, tc := range tests {
		got, err := d.LocalPath(tc.key)
		if tc.wantErr {
			assert.Error(t, err, tc.key)
			continue
		}
		require.NoError(t, err, tc.key)
		assert.Equal(t, filepath.FromSlash(tc.want), got)
	}
}

func TestDownload_AliasedKeysDoNotShareAFile(t *testing.T) {
	t.Parallel()
	store := &fakeStore{objects: map[string]string{
		"a/b.parquet":  "first",
		"a//b.parquet": "second",
		"./c.parquet":  "third",
		"c.parquet":    "fourth",
	}}
	dir := t.TempDir()
	d, err := New(store, "bkt", dir, 4)
	require.NoError(t, err)

	res := d.Download(context.Background(), batchOf("a/b.parquet", "a//b.parquet", "./c.parquet", "c.parquet"))
	require.Len(t, res, 4)
	require.NoError(t, res[0].Err)
	assert.ErrorContains(t, res[1].Err, "canonical form")
	assert.ErrorContains(t, res[2].Err, "canonical form")
	require.NoError(t, res[3].Err)

	got, err := os.ReadFile(filepath.Join(dir, "a", "b.parquet"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "c.parquet"))
	require.NoError(t, err)
	assert.Equal(t, "fourth", string(got))
	assert.EqualValues(t, 2, store.calls.Load(), "rejected keys are never fetched")
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(nil, "b", "d", 1)
	assert.Error(t, err)
	_, err = New(&fakeStore{}, "b", "d", 0)
	assert.Error(t, err)
	_, err = New(&fakeStore{}, "b", " ", 1)
	assert.Error(t, err)
}

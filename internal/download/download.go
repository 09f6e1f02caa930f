// Package download fetches a claimed batch of objects into local scratch
// storage with bounded parallelism.
//
// Every key of the batch is admitted at once and at most Limit fetches are in
// flight. A failing key never cancels its siblings: each fetch records its own
// outcome and the caller receives one Result per key, in claim order. There is
// no retry; a failed key is retried only by claiming it again in a later run.
package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"pq2pg/internal/objectstore"
	"pq2pg/internal/worklist"
)

// Artifact is a downloaded object on local disk.
type Artifact struct {
	Key      string
	Path     string
	Size     int64
	Checksum uint64 // xxh3 of the file contents
}

// Remove deletes the local file.
func (a Artifact) Remove() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("remove %s: %w", a.Path, err)
	}
	return nil
}

// Error is the per-key download failure.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string { return "download " + e.Key + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome for one key. Exactly one of Artifact/Err is meaningful.
type Result struct {
	Key      string
	Artifact Artifact
	Err      error
}

// Downloader fetches objects from one bucket into Dir.
type Downloader struct {
	store  objectstore.Store
	bucket string
	dir    string
	limit  int
}

// New returns a Downloader. limit bounds concurrent fetches and must be >= 1.
func New(store objectstore.Store, bucket, dir string, limit int) (*Downloader, error) {
	if store == nil {
		return nil, errors.New("download: store must not be nil")
	}
	if limit < 1 {
		return nil, errors.Errorf("download: limit must be >= 1, got %d", limit)
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("download: dir must not be empty")
	}
	return &Downloader{store: store, bucket: bucket, dir: dir, limit: limit}, nil
}

// Download fetches every key of batch and returns one Result per key in the
// batch's order.
func (d *Downloader) Download(ctx context.Context, batch worklist.BatchRequest) []Result {
	log := zerolog.Ctx(ctx).With().Str("component", "download").Str("batch", batch.ID.String()).Logger()

	results := make([]Result, len(batch.Keys))
	var g errgroup.Group
	g.SetLimit(d.limit)

	start := time.Now()
	for i, key := range batch.Keys {
		i, key := i, key
		results[i].Key = key
		g.Go(func() error {
			a, err := d.fetch(ctx, key)
			if err != nil {
				results[i].Err = &Error{Key: key, Err: err}
				log.Warn().Str("key", key).Err(err).Msg("fetch failed")
				return nil
			}
			results[i].Artifact = a
			log.Debug().Str("key", key).Int64("bytes", a.Size).Str("xxh3", fmt.Sprintf("%016x", a.Checksum)).Msg("fetched")
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Int("keys", len(results)).Int("failed", failed).Dur("took", time.Since(start)).Msg("batch downloaded")
	return results
}

// LocalPath maps an object key to its mirrored location under the scratch
// directory. Only keys already in clean form are accepted, so two distinct
// keys never share a local path.
func (d *Downloader) LocalPath(key string) (string, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return "", errors.Errorf("key %q does not name a file", key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("key %q escapes the downloads dir", key)
	}
	if filepath.ToSlash(clean) != key {
		return "", errors.Errorf("key %q is not in canonical form (want %q)", key, filepath.ToSlash(clean))
	}
	return filepath.Join(d.dir, clean), nil
}

func (d *Downloader) fetch(ctx context.Context, key string) (Artifact, error) {
	dst, err := d.LocalPath(key)
	if err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Artifact{}, errors.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return Artifact{}, errors.Errorf("create temp file: %w", err)
	}
	keep := false
	defer func() {
		if !keep {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := d.store.Fetch(ctx, d.bucket, key, tmp)
	if err != nil {
		return Artifact{}, err
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Artifact{}, errors.Errorf("rewind: %w", err)
	}
	h := xxh3.New()
	if _, err := io.Copy(h, tmp); err != nil {
		return Artifact{}, errors.Errorf("checksum: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Artifact{}, errors.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Artifact{}, errors.Errorf("rename into place: %w", err)
	}
	keep = true

	return Artifact{Key: key, Path: dst, Size: n, Checksum: h.Sum64()}, nil
}

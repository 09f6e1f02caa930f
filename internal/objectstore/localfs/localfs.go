// Package localfs implements objectstore.Store over a local directory tree.
// Each bucket is a subdirectory of Root and object keys are slash-separated
// paths relative to it. It backs development runs and hermetic tests.
package localfs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

// Store reads objects from Root/<bucket>/<key>.
type Store struct{ Root string }

// New returns a Store rooted at root.
func New(root string) *Store { return &Store{Root: root} }

// List walks the bucket directory in lexical order.
func (s *Store) List(ctx context.Context, bucket string) ([]string, error) {
	base := filepath.Join(s.Root, bucket)
	var keys []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("localfs: list %s: %w", bucket, err)
	}
	return keys, nil
}

// Fetch copies the object into w starting at offset zero.
func (s *Store) Fetch(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	f, err := os.Open(filepath.Join(s.Root, bucket, filepath.FromSlash(key)))
	if err != nil {
		return 0, errors.Errorf("localfs: open %s/%s: %w", bucket, key, err)
	}
	defer f.Close()

	n, err := io.Copy(io.NewOffsetWriter(w, 0), f)
	if err != nil {
		return n, errors.Errorf("localfs: copy %s/%s: %w", bucket, key, err)
	}
	return n, nil
}

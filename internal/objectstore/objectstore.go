// Package objectstore defines the object storage collaborator used to
// discover and fetch source files, plus the key filter shared by its
// implementations.
package objectstore

import (
	"context"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// Store lists and fetches objects from a bucket.
type Store interface {
	// List returns object keys under the bucket, in the order the backend
	// reports them. Directory placeholders are never returned.
	List(ctx context.Context, bucket string) ([]string, error)
	// Fetch writes the object's bytes to w.
	Fetch(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// Filter selects which listed keys become work items.
type Filter struct {
	Prefix  string // keys must start with Prefix
	Pattern string // optional doublestar glob matched against the full key
}

// Validate checks that the glob pattern is well-formed.
func (f Filter) Validate() error {
	if f.Pattern == "" {
		return nil
	}
	if !doublestar.ValidatePattern(f.Pattern) {
		return errors.Errorf("objectstore: invalid pattern %q", f.Pattern)
	}
	return nil
}

// Match reports whether key passes the filter.
func (f Filter) Match(key string) bool {
	if key == "" || strings.HasSuffix(key, "/") {
		return false
	}
	if !strings.HasPrefix(key, f.Prefix) {
		return false
	}
	if f.Pattern == "" {
		return true
	}
	ok, err := doublestar.Match(f.Pattern, key)
	return err == nil && ok
}

// Apply returns the keys of in that pass the filter, preserving order.
func (f Filter) Apply(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if f.Match(k) {
			out = append(out, k)
		}
	}
	return out
}

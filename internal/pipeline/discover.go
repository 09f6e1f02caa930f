package pipeline

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"pq2pg/internal/logging"
	"pq2pg/internal/objectstore"
)

// Seeder is the part of the work list that accepts new keys.
type Seeder interface {
	Initialize(ctx context.Context, keys []string) (int, error)
}

// Discover lists bucket, keeps the keys passing filter and seeds them into
// the work list. Keys the work list already knows keep their state. It
// returns the number of listed keys that passed the filter and the number
// newly added.
func Discover(ctx context.Context, store objectstore.Store, bucket string, filter objectstore.Filter, wl Seeder) (matched, added int, err error) {
	log := logging.Component(ctx, "discover")

	keys, err := store.List(ctx, bucket)
	if err != nil {
		return 0, 0, errors.Errorf("list %s: %w", bucket, err)
	}
	keys = filter.Apply(keys)
	if len(keys) == 0 {
		log.Warn().Str("bucket", bucket).Str("prefix", filter.Prefix).Str("pattern", filter.Pattern).Msg("no keys matched")
		return 0, 0, nil
	}

	added, err = wl.Initialize(ctx, keys)
	if err != nil {
		return len(keys), 0, errors.Errorf("seed work list: %w", err)
	}
	log.Info().Str("bucket", bucket).Int("matched", len(keys)).Int("added", added).Msg("work list seeded")
	return len(keys), added, nil
}

package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"pq2pg/internal/columnar/parquet"
	"pq2pg/internal/config"
	"pq2pg/internal/download"
	"pq2pg/internal/load"
	"pq2pg/internal/logging"
	"pq2pg/internal/metrics"
	"pq2pg/internal/metrics/datadog"
	"pq2pg/internal/metrics/prompush"
	"pq2pg/internal/objectstore"
	"pq2pg/internal/objectstore/localfs"
	"pq2pg/internal/objectstore/s3"
	"pq2pg/internal/pipeline"
	"pq2pg/internal/resolve"
	"pq2pg/internal/worklist"
)

// localScheme selects the directory-backed object store: with
// s3.endpoint "file:///srv/objects", bucket "b" maps to /srv/objects/b.
const localScheme = "file://"

// Function variables used as test seams. In production they point to the
// real constructors.
var (
	connectFn   = realConnect
	openStoreFn = openStore
)

func realConnect(ctx context.Context, dsn string) (load.DB, error) {
	db, err := load.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func openStore(cfg *config.Config) (objectstore.Store, error) {
	if root, ok := strings.CutPrefix(cfg.S3.Endpoint, localScheme); ok {
		return localfs.New(root), nil
	}
	st, err := s3.New(cfg.S3Store())
	if err != nil {
		return nil, err
	}
	return st, nil
}

// setupMetrics installs the configured backend. The returned func flushes it.
func setupMetrics(log *zerolog.Logger, cfg *config.Config) (func(), error) {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.Metrics.Backend {
	case config.MetricsProm:
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
	case config.MetricsDatadog:
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			Namespace:  "pq2pg.",
			GlobalTags: []string{"job:" + cfg.Job},
		})
	case "", config.MetricsNone:
		log.Debug().Msg("metrics disabled")
		return func() {}, nil
	default:
		return nil, errors.Errorf("unknown metrics backend %q", cfg.Metrics.Backend)
	}
	if err != nil {
		return nil, errors.Errorf("init %s metrics: %w", cfg.Metrics.Backend, err)
	}

	metrics.SetBackend(b)
	log.Info().Str("backend", cfg.Metrics.Backend).Str("job", cfg.Job).Msg("metrics enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics flush")
		}
	}, nil
}

// container owns the long-lived collaborators of one command invocation.
type container struct {
	cfg   *config.Config
	spec  resolve.FieldSpec
	wl    *worklist.Store
	store objectstore.Store
	db    load.DB
}

// newContainer opens the work list and object store. The destination is
// connected lazily by driver, so commands that only touch the work list never
// need the database.
func newContainer(ctx context.Context, cfg *config.Config) (*container, error) {
	spec, err := cfg.FieldSpec()
	if err != nil {
		return nil, errors.Errorf("field spec: %w", err)
	}
	store, err := openStoreFn(cfg)
	if err != nil {
		return nil, errors.Errorf("object store: %w", err)
	}
	wl, err := worklist.Open(ctx, cfg.WorkLists.Dir)
	if err != nil {
		return nil, err
	}
	return &container{cfg: cfg, spec: spec, wl: wl, store: store}, nil
}

func (c *container) Close(ctx context.Context) {
	if c.db != nil {
		c.db.Close()
	}
	if err := c.wl.Close(); err != nil {
		logging.Component(ctx, "container").Warn().Err(err).Msg("close work list")
	}
}

// discover seeds the work list from the bucket listing.
func (c *container) discover(ctx context.Context) (matched, added int, err error) {
	return pipeline.Discover(ctx, c.store, c.cfg.S3.Bucket, c.cfg.Filter(), c.wl)
}

// driver connects to the destination, checks that every mapped column exists
// and assembles a pipeline.Driver.
func (c *container) driver(ctx context.Context) (*pipeline.Driver, error) {
	log := logging.Component(ctx, "container")

	if c.db == nil {
		db, err := connectFn(ctx, c.cfg.DB.ConnStr)
		if err != nil {
			return nil, err
		}
		c.db = db
	}
	loader := load.New(c.db)

	cols, err := loader.CheckColumns(ctx, c.cfg.DB.TableName, c.spec.Columns())
	if err != nil {
		return nil, err
	}
	for _, col := range cols {
		log.Debug().Str("column", col.Name).Str("type", col.Type).Bool("not_null", col.NotNull).Msg("destination column")
	}

	dl, err := download.New(c.store, c.cfg.S3.Bucket, c.cfg.S3.DownloadsDir, c.cfg.S3.DownloadBatchSize)
	if err != nil {
		return nil, err
	}

	return pipeline.New(
		pipeline.Config{
			Job:           c.cfg.Job,
			Table:         c.cfg.DB.TableName,
			BatchSize:     c.cfg.S3.DownloadBatchSize,
			Fields:        c.spec,
			KeepArtifacts: c.cfg.Runtime.KeepArtifacts,
		},
		pipeline.Deps{
			WorkList:   c.wl,
			Downloader: dl,
			Resolver:   resolve.New(parquet.Opener{}),
			Loader:     loader,
		},
	)
}

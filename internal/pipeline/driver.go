// Package pipeline drives a run: it claims batches from the work list,
// downloads each batch concurrently, then resolves and loads the files one
// at a time in claim order, recording every outcome back in the work list.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"pq2pg/internal/download"
	"pq2pg/internal/load"
	"pq2pg/internal/logging"
	"pq2pg/internal/metrics"
	"pq2pg/internal/resolve"
	"pq2pg/internal/worklist"
)

// Phase is the driver's position in the run.
type Phase int

const (
	Idle Phase = iota
	ClaimingBatch
	Downloading
	ProcessingFile
	Drained
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ClaimingBatch:
		return "claiming_batch"
	case Downloading:
		return "downloading"
	case ProcessingFile:
		return "processing_file"
	case Drained:
		return "drained"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// WorkList is the subset of *worklist.Store the driver mutates.
type WorkList interface {
	ClaimBatch(ctx context.Context, n int) (worklist.BatchRequest, error)
	MarkDone(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key, reason string) error
}

type Downloader interface {
	Download(ctx context.Context, batch worklist.BatchRequest) []download.Result
}

type Resolver interface {
	Resolve(ctx context.Context, a download.Artifact, spec resolve.FieldSpec) (*resolve.Rows, error)
}

type Loader interface {
	Load(ctx context.Context, src load.RowSource, table string) (int64, error)
}

// Deps are the collaborators of a Driver.
type Deps struct {
	WorkList   WorkList
	Downloader Downloader
	Resolver   Resolver
	Loader     Loader
}

// Config is fixed for the lifetime of a Driver.
type Config struct {
	Job           string
	Table         string
	BatchSize     int
	Fields        resolve.FieldSpec
	KeepArtifacts bool
}

// Failure is one key that ended the run Failed.
type Failure struct {
	Key    string `yaml:"key"`
	Reason string `yaml:"reason"`
}

// Report summarizes what a run did.
type Report struct {
	Done    []string  `yaml:"done"`
	Failed  []Failure `yaml:"failed"`
	Rows    int64     `yaml:"rows"`
	Batches int       `yaml:"batches"`
}

// Err is non-nil when any file failed.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return errors.Errorf("%d of %d files failed", len(r.Failed), len(r.Failed)+len(r.Done))
}

// Driver runs the claim, download, resolve and load loop.
type Driver struct {
	cfg   Config
	deps  Deps
	phase Phase
}

// New returns a Driver. BatchSize must be at least 1.
func New(cfg Config, deps Deps) (*Driver, error) {
	if cfg.BatchSize < 1 {
		return nil, errors.Errorf("pipeline: batch size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.Table == "" {
		return nil, errors.New("pipeline: table must not be empty")
	}
	if cfg.Fields.Len() == 0 {
		return nil, errors.New("pipeline: field spec is empty")
	}
	if deps.WorkList == nil || deps.Downloader == nil || deps.Resolver == nil || deps.Loader == nil {
		return nil, errors.New("pipeline: all dependencies are required")
	}
	return &Driver{cfg: cfg, deps: deps}, nil
}

// Phase returns the phase the driver last entered.
func (d *Driver) Phase() Phase { return d.phase }

func (d *Driver) enter(log *zerolog.Logger, p Phase) {
	d.phase = p
	log.Debug().Stringer("phase", p).Msg("phase")
}

// Run processes batches until the work list has nothing Pending.
//
// The returned error is non-nil only for failures that stop the run: a work
// list error, a destination connection error, or a cancelled context checked
// between batches. Per-file failures are recorded in the Report and the work
// list; use Report.Err to turn them into an exit status.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	log := logging.Component(ctx, "pipeline")
	var rep Report
	d.phase = Idle
	started := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return rep, errors.Errorf("run interrupted: %w", err)
		}

		d.enter(log, ClaimingBatch)
		t := time.Now()
		batch, err := d.deps.WorkList.ClaimBatch(ctx, d.cfg.BatchSize)
		metrics.RecordStep(d.cfg.Job, "claim", err, time.Since(t))
		if err != nil {
			return rep, errors.Errorf("claim batch: %w", err)
		}
		if batch.Empty() {
			d.enter(log, Drained)
			break
		}
		rep.Batches++
		metrics.RecordBatch(d.cfg.Job)
		log.Info().Str("batch", batch.ID.String()).Int("keys", len(batch.Keys)).Msg("batch claimed")

		d.enter(log, Downloading)
		t = time.Now()
		results := d.deps.Downloader.Download(ctx, batch)
		metrics.RecordStep(d.cfg.Job, "download", firstErr(results), time.Since(t))

		for i, res := range results {
			d.phase = ProcessingFile
			log.Debug().Stringer("phase", ProcessingFile).Int("file", i).Str("key", res.Key).Msg("phase")
			if err := d.process(ctx, log, res, &rep); err != nil {
				left := d.failDownloads(ctx, log, &rep, results[i+1:])
				log.Error().Err(err).Str("key", res.Key).Int("left_claimed", left).Msg("run aborted")
				return rep, err
			}
		}
	}

	log.Info().Int("done", len(rep.Done)).Int("failed", len(rep.Failed)).Int64("rows", rep.Rows).
		Int("batches", rep.Batches).Dur("took", time.Since(started)).Msg("run drained")
	return rep, nil
}

// process handles one download result. It returns an error only when the
// run must stop.
func (d *Driver) process(ctx context.Context, log *zerolog.Logger, res download.Result, rep *Report) error {
	if res.Err != nil {
		return d.fail(ctx, log, rep, res.Key, res.Err)
	}

	n, err := d.loadFile(ctx, res.Artifact)
	if err != nil {
		if ferr := d.fail(ctx, log, rep, res.Key, err); ferr != nil {
			return ferr
		}
		if load.Fatal(err) {
			return errors.Errorf("destination unavailable while loading %s: %w", res.Key, err)
		}
		return nil
	}

	if err := d.deps.WorkList.MarkDone(ctx, res.Key); err != nil {
		return errors.Errorf("mark %s done: %w", res.Key, err)
	}
	rep.Done = append(rep.Done, res.Key)
	rep.Rows += n
	metrics.RecordFile(d.cfg.Job, "done")
	metrics.RecordRows(d.cfg.Job, n)
	log.Info().Str("key", res.Key).Int64("rows", n).Msg("file loaded")

	if !d.cfg.KeepArtifacts {
		if err := res.Artifact.Remove(); err != nil {
			log.Warn().Err(err).Str("path", res.Artifact.Path).Msg("remove artifact")
		}
	}
	return nil
}

func (d *Driver) loadFile(ctx context.Context, a download.Artifact) (int64, error) {
	t := time.Now()
	rows, err := d.deps.Resolver.Resolve(ctx, a, d.cfg.Fields)
	metrics.RecordStep(d.cfg.Job, "resolve", err, time.Since(t))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	t = time.Now()
	n, err := d.deps.Loader.Load(ctx, rows, d.cfg.Table)
	metrics.RecordStep(d.cfg.Job, "load", err, time.Since(t))
	return n, err
}

func (d *Driver) fail(ctx context.Context, log *zerolog.Logger, rep *Report, key string, cause error) error {
	reason := cause.Error()
	if err := d.deps.WorkList.MarkFailed(ctx, key, reason); err != nil {
		return errors.Errorf("mark %s failed: %w", key, err)
	}
	rep.Failed = append(rep.Failed, Failure{Key: key, Reason: reason})
	metrics.RecordFile(d.cfg.Job, "failed")
	log.Warn().Str("key", key).Str("reason", reason).Msg("file failed")
	return nil
}

// failDownloads records the outcome of results that were already decided by
// the downloader when the run stopped: each failed download is marked Failed.
// It returns how many keys stay Claimed.
func (d *Driver) failDownloads(ctx context.Context, log *zerolog.Logger, rep *Report, results []download.Result) int {
	left := 0
	for _, r := range results {
		if r.Err == nil {
			left++
			continue
		}
		if err := d.fail(ctx, log, rep, r.Key, r.Err); err != nil {
			log.Error().Err(err).Str("key", r.Key).Msg("record download failure")
			left++
		}
	}
	return left
}

func firstErr(results []download.Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"pq2pg/internal/logging"
	"pq2pg/internal/pipeline"
)

func newRunCmd(o *rootOpts) *cobra.Command {
	var noDiscover bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed the work list from the bucket and load every pending object",
		Long: `Run lists the bucket (unless --no-discover), adds new keys to the work
list, then claims, downloads and loads batches until nothing is pending.

The exit status is 0 only when every claimed object was loaded. Failed
objects stay Failed in the work list; use "requeue" to retry them.

With a schedule (--schedule or runtime.schedule) the command keeps running
and starts a run on every cron tick, skipping ticks while a run is active.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.valid(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			log := logging.Component(ctx, "run")

			flush, err := setupMetrics(log, o.cfg)
			if err != nil {
				return err
			}
			defer flush()

			once := func(ctx context.Context) error {
				return runOnce(ctx, o, !noDiscover, cmd.OutOrStdout())
			}
			if o.cfg.Runtime.Schedule == "" {
				return once(ctx)
			}
			return runScheduled(ctx, log, o.cfg.Runtime.Schedule, once)
		},
	}

	cmd.Flags().BoolVar(&noDiscover, "no-discover", false, "skip listing the bucket; only process keys already in the work list")
	cmd.Flags().String("schedule", "", "cron spec; run on every tick instead of once")
	_ = o.v.BindPFlag("runtime.schedule", cmd.Flags().Lookup("schedule"))
	return cmd
}

func runOnce(ctx context.Context, o *rootOpts, discover bool, out io.Writer) error {
	c, err := newContainer(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	if discover {
		if _, _, err := c.discover(ctx); err != nil {
			return err
		}
	}

	d, err := c.driver(ctx)
	if err != nil {
		return err
	}
	rep, err := d.Run(ctx)
	printReport(out, rep)
	if err != nil {
		return err
	}
	return rep.Err()
}

// runScheduled starts fn on every tick of spec until ctx is done.
func runScheduled(ctx context.Context, log *zerolog.Logger, spec string, fn func(context.Context) error) error {
	cl := cronLogger{log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(spec, func() {
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
			return
		}
		log.Info().Msg("scheduled run succeeded")
	})
	if err != nil {
		return errors.Errorf("schedule %q: %w", spec, err)
	}

	log.Info().Str("schedule", spec).Msg("waiting for schedule")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("scheduler stopped")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log *zerolog.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug().Fields(kv).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error().Err(err).Fields(kv).Msg("cron: " + msg)
}

// printReport writes the end-of-run summary. Every failed key is listed with
// its reason.
func printReport(w io.Writer, rep pipeline.Report) {
	fmt.Fprintf(w, "done: %d  failed: %d  rows: %d  batches: %d\n",
		len(rep.Done), len(rep.Failed), rep.Rows, rep.Batches)
	red := color.New(color.FgRed)
	for _, f := range rep.Failed {
		red.Fprint(w, "FAILED")
		fmt.Fprintf(w, " %s: %s\n", f.Key, f.Reason)
	}
}

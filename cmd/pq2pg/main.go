// Command pq2pg copies parquet objects from an S3 bucket into a Postgres
// table, one transactional COPY per object, tracking progress in a durable
// work list so an interrupted run resumes where it stopped.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"

	"pq2pg/internal/config"
	"pq2pg/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and maps the outcome to an exit status: 0 only when
// the command fully succeeded.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// rootOpts holds the persistent flags and the configuration loaded from them.
type rootOpts struct {
	configPath string
	logLevel   string
	logFormat  string

	v   *viper.Viper
	cfg *config.Config
}

var errInvalidConfig = errors.Base("configuration is invalid")

func newRootCmd() *cobra.Command {
	o := &rootOpts{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:           "pq2pg",
		Short:         "Load parquet objects from S3 into a Postgres table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{
				Level:  o.logLevel,
				Format: logging.Format(o.logFormat),
				Out:    cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			cmd.SetContext(logger.WithContext(cmd.Context()))

			o.cfg, err = config.Load(o.configPath, o.v)
			return err
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "pq2pg.yml", "job config YAML path")
	pf.StringVar(&o.logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	pf.StringVar(&o.logFormat, "log-format", string(logging.FormatConsole), "log format (console|json)")
	pf.String("metrics", "", "metrics backend (none|prom|datadog); overrides metrics.backend")
	// Lookup cannot fail for a flag declared just above.
	_ = o.v.BindPFlag("metrics.backend", pf.Lookup("metrics"))

	cmd.AddCommand(
		newRunCmd(o),
		newSeedCmd(o),
		newStatusCmd(o),
		newRequeueCmd(o),
		newValidateCmd(o),
	)
	return cmd
}

// valid prints warnings to the log and refuses a config with errors.
func (o *rootOpts) valid(cmd *cobra.Command) error {
	log := logging.Component(cmd.Context(), "config")
	issues := config.Validate(o.cfg)
	for _, iss := range issues {
		ev := log.Warn()
		if iss.Severity == config.SeverityError {
			ev = log.Error()
		}
		ev.Str("path", iss.Path).Msg(iss.Message)
	}
	if config.HasErrors(issues) {
		return errors.Errorf("%s: %w", o.configPath, errInvalidConfig)
	}
	return nil
}

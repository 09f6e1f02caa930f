// Package logging configures the zerolog logger shared by the CLI, the
// pipeline components, and tests.
//
// Components never hold a global logger. They pull one from the context with
// zerolog.Ctx and tag their lines with a "component" field, which keeps the
// familiar "component: key=value" shape of the output while remaining
// machine-parseable in JSON mode.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Format selects the log encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options controls logger construction.
type Options struct {
	Level  string // trace|debug|info|warn|error; default info
	Format Format // console (default) or json
	Out    io.Writer
}

// New builds a logger from opts and installs it as zerolog's default context
// logger, so zerolog.Ctx on a bare context still logs somewhere sensible.
func New(opts Options) (zerolog.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	lvl := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), errors.Errorf("parse log level %q: %w", s, err)
		}
		lvl = parsed
	}

	switch opts.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return zerolog.Nop(), errors.Errorf("unknown log format %q", opts.Format)
	}

	zerolog.SetGlobalLevel(lvl)
	logger := zerolog.New(out).With().Timestamp().Logger().Level(lvl)
	zerolog.DefaultContextLogger = &logger
	return logger, nil
}

// Component returns the context logger tagged with the component name.
func Component(ctx context.Context, name string) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("component", name).Logger()
	return &l
}

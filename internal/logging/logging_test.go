package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// New mutates zerolog globals, so these tests do not run in parallel.

func TestNew_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "DEBUG", Format: FormatJSON, Out: &buf})
	require.NoError(t, err)

	ctx := logger.WithContext(context.Background())
	Component(ctx, "worklist").Debug().Str("key", "a.parquet").Msg("claimed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "worklist", line["component"])
	assert.Equal(t, "a.parquet", line["key"])
	assert.Equal(t, "claimed", line["message"])
	assert.Equal(t, "debug", line["level"])
	assert.Contains(t, line, "time")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: FormatJSON, Out: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Out: &buf})
	require.NoError(t, err)
	logger.Info().Str("bucket", "exports").Msg("listed")
	out := buf.String()
	assert.Contains(t, out, "bucket")
	assert.Contains(t, out, "exports")
	assert.Contains(t, out, "listed")
	assert.NotContains(t, out, "{", "console output is not JSON")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.ErrorContains(t, err, `parse log level "loud"`)
	_, err = New(Options{Format: "xml"})
	assert.ErrorContains(t, err, `unknown log format "xml"`)
}

func TestComponent_DefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(Options{Format: FormatJSON, Out: &buf})
	require.NoError(t, err)

	// A bare context falls back to the logger New installed.
	Component(context.Background(), "download").Info().Msg("fallback")
	assert.Contains(t, buf.String(), `"component":"download"`)
	zerolog.DefaultContextLogger = nil
}

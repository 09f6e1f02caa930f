package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pq2pg/internal/resolve"
)

const goodYAML = `
job: orders
db:
  table_name: public.orders
  conn_str: host=127.0.0.1 password=postgres user=postgres dbname=warehouse
s3:
  bucket: exports
  endpoint: http://localhost:9000
  prefix: daily/
  pattern: "**/*.parquet"
  download_batch_size: 4
  downloads_dir: /tmp/pq2pg/downloads
parquet:
  desired_fields: [order_id, Desc, amount]
parquet_to_db:
  Desc: description
  amount:
work_lists:
  dir: /var/lib/pq2pg
runtime:
  keep_artifacts: true
  schedule: "*/5 * * * *"
metrics:
  backend: prom
  pushgateway_url: http://pushgateway:9091
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Good(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, goodYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Job)
	assert.Equal(t, "public.orders", cfg.DB.TableName)
	assert.Equal(t, "exports", cfg.S3.Bucket)
	assert.Equal(t, 4, cfg.S3.DownloadBatchSize)
	assert.Equal(t, []string{"order_id", "Desc", "amount"}, cfg.Parquet.DesiredFields)
	// Key case survives and a null value means "same name".
	assert.Equal(t, map[string]string{"Desc": "description", "amount": ""}, cfg.ParquetToDB)
	assert.True(t, cfg.Runtime.KeepArtifacts)
	assert.Empty(t, Validate(cfg))

	spec, err := cfg.FieldSpec()
	require.NoError(t, err)
	assert.Equal(t, []resolve.Field{
		{Source: "order_id", Dest: "order_id"},
		{Source: "Desc", Dest: "description"},
		{Source: "amount", Dest: "amount"},
	}, spec.Fields())

	assert.True(t, cfg.Filter().Match("daily/2024/01/a.parquet"))
	assert.False(t, cfg.Filter().Match("daily/2024/01/a.csv"))
	assert.Equal(t, "http://localhost:9000", cfg.S3Store().Endpoint)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, ""), nil)
	assert.ErrorContains(t, err, "empty config")

	_, err = Load(writeConfig(t, "db: [unterminated"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "db:\n  table: typo\n"), nil)
	assert.Error(t, err, "unknown keys are rejected")
}

func TestDecode_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode([]byte("s3:\n  bucket: b\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultJob, cfg.Job)
	assert.Equal(t, MetricsNone, cfg.Metrics.Backend)
}

// Environment overrides use t.Setenv and therefore cannot run in parallel.
func TestApplyOverrides_Env(t *testing.T) {
	t.Setenv("PQ2PG_DB_CONN_STR", "postgres://override")
	t.Setenv("PQ2PG_S3_DOWNLOAD_BATCH_SIZE", "9")
	t.Setenv("PQ2PG_RUNTIME_KEEP_ARTIFACTS", "false")

	cfg, err := Load(writeConfig(t, goodYAML), NewViper())
	require.NoError(t, err)
	assert.Equal(t, "postgres://override", cfg.DB.ConnStr)
	assert.Equal(t, 9, cfg.S3.DownloadBatchSize)
	assert.False(t, cfg.Runtime.KeepArtifacts)
	// Untouched keys keep the file value.
	assert.Equal(t, "exports", cfg.S3.Bucket)
}

func TestApplyOverrides_Flags(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("table", "", "")
	fs.String("bucket", "", "")
	v := NewViper()
	require.NoError(t, v.BindPFlag("db.table_name", fs.Lookup("table")))
	require.NoError(t, v.BindPFlag("s3.bucket", fs.Lookup("bucket")))
	require.NoError(t, fs.Parse([]string{"--table", "staging.orders"}))

	cfg, err := Decode([]byte(goodYAML))
	require.NoError(t, err)
	ApplyOverrides(cfg, v)
	assert.Equal(t, "staging.orders", cfg.DB.TableName)
	assert.Equal(t, "exports", cfg.S3.Bucket, "an unchanged flag must not clobber the file")
}

func TestOverrideKeys(t *testing.T) {
	t.Parallel()
	keys := OverrideKeys()
	assert.Contains(t, keys, "db.conn_str")
	assert.Contains(t, keys, "s3.download_batch_size")
	assert.IsIncreasing(t, keys)
}

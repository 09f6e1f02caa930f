package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Job: "orders",
		DB:  DB{TableName: "public.orders", ConnStr: "postgres://localhost/warehouse"},
		S3: S3{
			Bucket:            "exports",
			DownloadBatchSize: 2,
			DownloadsDir:      "/tmp/dl",
		},
		Parquet:     Parquet{DesiredFields: []string{"order_id", "desc"}},
		ParquetToDB: map[string]string{"desc": "description"},
		WorkLists:   WorkLists{Dir: "/tmp/wl"},
		Metrics:     Metrics{Backend: MetricsNone},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Validate(validConfig()))
}

func TestValidate_Issues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Config)
		path     string
		severity IssueSeverity
	}{
		{"missing table", func(c *Config) { c.DB.TableName = "" }, "db.table_name", SeverityError},
		{"empty table component", func(c *Config) { c.DB.TableName = "public." }, "db.table_name", SeverityError},
		{"missing dsn", func(c *Config) { c.DB.ConnStr = " " }, "db.conn_str", SeverityError},
		{"missing bucket", func(c *Config) { c.S3.Bucket = "" }, "s3.bucket", SeverityError},
		{"zero batch", func(c *Config) { c.S3.DownloadBatchSize = 0 }, "s3.download_batch_size", SeverityError},
		{"negative batch", func(c *Config) { c.S3.DownloadBatchSize = -3 }, "s3.download_batch_size", SeverityError},
		{"missing downloads dir", func(c *Config) { c.S3.DownloadsDir = "" }, "s3.downloads_dir", SeverityError},
		{"bad glob", func(c *Config) { c.S3.Pattern = "[unclosed" }, "s3.pattern", SeverityError},
		{"half credentials", func(c *Config) { c.S3.AccessKey = "AKIA" }, "s3.access_key", SeverityWarning},
		{"no fields", func(c *Config) { c.Parquet.DesiredFields = nil }, "parquet.desired_fields", SeverityError},
		{"blank field", func(c *Config) { c.Parquet.DesiredFields, c.ParquetToDB = []string{"a", ""}, nil }, "parquet.desired_fields[1]", SeverityError},
		{"duplicate field", func(c *Config) { c.Parquet.DesiredFields, c.ParquetToDB = []string{"a", "b", "a"}, nil }, "parquet.desired_fields[2]", SeverityError},
		{"rename of unknown field", func(c *Config) { c.ParquetToDB["ghost"] = "g" }, "parquet_to_db.ghost", SeverityWarning},
		{"two fields one column", func(c *Config) { c.ParquetToDB["desc"] = "order_id" }, "parquet_to_db.desc", SeverityError},
		{"missing work list dir", func(c *Config) { c.WorkLists.Dir = "" }, "work_lists.dir", SeverityError},
		{"bad cron", func(c *Config) { c.Runtime.Schedule = "every tuesday" }, "runtime.schedule", SeverityError},
		{"unknown metrics backend", func(c *Config) { c.Metrics.Backend = "statsd" }, "metrics.backend", SeverityError},
		{"prom without url", func(c *Config) { c.Metrics.Backend = MetricsProm }, "metrics.pushgateway_url", SeverityError},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = MetricsDatadog }, "metrics.datadog_addr", SeverityError},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)

			issues := Validate(cfg)
			require.Len(t, issues, 1, "issues: %v", issues)
			assert.Equal(t, tc.path, issues[0].Path)
			assert.Equal(t, tc.severity, issues[0].Severity)
			assert.Equal(t, tc.severity == SeverityError, HasErrors(issues))
		})
	}
}

func TestValidate_GoodCron(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Runtime.Schedule = "0 */2 * * *"
	assert.Empty(t, Validate(cfg))
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()
	iss := Issue{Severity: SeverityError, Path: "s3.bucket", Message: "bucket must not be empty"}
	assert.Equal(t, "error at s3.bucket: bucket must not be empty", iss.Error())
}

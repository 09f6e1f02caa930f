package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"

	"pq2pg/internal/objectstore"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the YAML
// document, e.g. "s3.download_batch_size" or "parquet.desired_fields[2]".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks over cfg. It does not mutate cfg and does
// not contact any external system.
func Validate(cfg *Config) []Issue {
	var issues []Issue
	issues = append(issues, validateDB(cfg.DB)...)
	issues = append(issues, validateS3(cfg.S3)...)
	issues = append(issues, validateFields(cfg.Parquet.DesiredFields, cfg.ParquetToDB)...)
	if strings.TrimSpace(cfg.WorkLists.Dir) == "" {
		issues = append(issues, errIssue("work_lists.dir", "work list directory must not be empty"))
	}
	issues = append(issues, validateRuntime(cfg.Runtime)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	return issues
}

func errIssue(path, msg string) Issue  { return Issue{SeverityError, path, msg} }
func warnIssue(path, msg string) Issue { return Issue{SeverityWarning, path, msg} }

func validateDB(db DB) []Issue {
	var issues []Issue
	if strings.TrimSpace(db.TableName) == "" {
		issues = append(issues, errIssue("db.table_name", "table name must not be empty"))
	} else {
		for _, part := range strings.Split(db.TableName, ".") {
			if part == "" {
				issues = append(issues, errIssue("db.table_name",
					fmt.Sprintf("table name %q has an empty component", db.TableName)))
				break
			}
		}
	}
	if strings.TrimSpace(db.ConnStr) == "" {
		issues = append(issues, errIssue("db.conn_str", "connection string must not be empty"))
	}
	return issues
}

func validateS3(s S3) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Bucket) == "" {
		issues = append(issues, errIssue("s3.bucket", "bucket must not be empty"))
	}
	if s.DownloadBatchSize < 1 {
		issues = append(issues, errIssue("s3.download_batch_size",
			fmt.Sprintf("download batch size must be at least 1, got %d", s.DownloadBatchSize)))
	}
	if strings.TrimSpace(s.DownloadsDir) == "" {
		issues = append(issues, errIssue("s3.downloads_dir", "downloads directory must not be empty"))
	}
	if err := (objectstore.Filter{Prefix: s.Prefix, Pattern: s.Pattern}).Validate(); err != nil {
		issues = append(issues, errIssue("s3.pattern", err.Error()))
	}
	if (s.AccessKey == "") != (s.SecretKey == "") {
		issues = append(issues, warnIssue("s3.access_key",
			"access_key and secret_key should be set together; falling back to the default credential chain"))
	}
	return issues
}

func validateFields(desired []string, rename map[string]string) []Issue {
	var issues []Issue
	if len(desired) == 0 {
		return append(issues, errIssue("parquet.desired_fields", "at least one field is required"))
	}

	seen := make(map[string]int, len(desired))
	dest := make(map[string]string, len(desired))
	for i, f := range desired {
		path := fmt.Sprintf("parquet.desired_fields[%d]", i)
		if strings.TrimSpace(f) == "" {
			issues = append(issues, errIssue(path, "field name must not be empty"))
			continue
		}
		if j, dup := seen[f]; dup {
			issues = append(issues, errIssue(path,
				fmt.Sprintf("duplicate field %q (also at index %d)", f, j)))
			continue
		}
		seen[f] = i

		to := f
		if r := rename[f]; r != "" {
			to = r
		}
		if other, taken := dest[to]; taken {
			issues = append(issues, errIssue("parquet_to_db."+f,
				fmt.Sprintf("fields %q and %q both map to column %q", other, f, to)))
			continue
		}
		dest[to] = f
	}

	for _, src := range slices.Sorted(maps.Keys(rename)) {
		if _, ok := seen[src]; !ok {
			issues = append(issues, warnIssue("parquet_to_db."+src,
				fmt.Sprintf("%q is not a desired field; the mapping is ignored", src)))
		}
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	if r.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return []Issue{errIssue("runtime.schedule", fmt.Sprintf("invalid cron spec %q: %v", r.Schedule, err))}
	}
	return nil
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", MetricsNone:
		return nil
	case MetricsProm:
		if m.PushgatewayURL == "" {
			return []Issue{errIssue("metrics.pushgateway_url", "prom backend requires a pushgateway URL")}
		}
	case MetricsDatadog:
		if m.DatadogAddr == "" {
			return []Issue{errIssue("metrics.datadog_addr", "datadog backend requires an agent address")}
		}
	default:
		return []Issue{errIssue("metrics.backend",
			fmt.Sprintf("unknown metrics backend %q (want none, prom or datadog)", m.Backend))}
	}
	return nil
}

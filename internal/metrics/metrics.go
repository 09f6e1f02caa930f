// Package metrics records operational metrics from the pipeline through a
// pluggable Backend.
//
// The default backend is a no-op, so every Record* call is safe whether or
// not a concrete backend (Prometheus Pushgateway, Datadog) was installed.
// Concrete backends live in subpackages and are the only code that imports a
// metrics client library.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by all backends.
const (
	StepTotal    = "pq2pg_step_total"
	StepDuration = "pq2pg_step_duration_seconds"
	FilesTotal   = "pq2pg_files_total"
	RowsTotal    = "pq2pg_rows_total"
	BatchesTotal = "pq2pg_batches_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one pipeline step
// ("claim", "download", "resolve", "load").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordFile counts one finished file; outcome is "done" or "failed".
func RecordFile(job, outcome string) {
	current().IncCounter(FilesTotal, 1, Labels{"job": job, "outcome": outcome})
}

// RecordRows counts rows committed to the destination.
func RecordRows(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job})
}

// RecordBatch counts one claimed, non-empty batch.
func RecordBatch(job string) {
	current().IncCounter(BatchesTotal, 1, Labels{"job": job})
}

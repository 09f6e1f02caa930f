package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []call
	histograms []call
	flushes    int
}

type call struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

// install swaps in a fake for the duration of the test. Tests using it must
// not run in parallel.
func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(orig) })
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("orders", "download", nil, 2*time.Second)
	RecordStep("orders", "load", errors.New("boom"), 1500*time.Millisecond)

	require.Len(t, fb.counters, 2)
	require.Len(t, fb.histograms, 2)

	assert.Equal(t, call{StepTotal, 1, Labels{"job": "orders", "step": "download", "status": "success"}}, fb.counters[0])
	assert.Equal(t, "failure", fb.counters[1].labels["status"])
	assert.Equal(t, "load", fb.counters[1].labels["step"])

	assert.Equal(t, StepDuration, fb.histograms[0].name)
	assert.InDelta(t, 2.0, fb.histograms[0].value, 0.001)
	assert.InDelta(t, 1.5, fb.histograms[1].value, 0.001)
}

func TestRecordFileRowsBatch(t *testing.T) {
	fb := install(t)

	RecordFile("orders", "done")
	RecordFile("orders", "failed")
	RecordRows("orders", 42)
	RecordRows("orders", 0) // ignored
	RecordBatch("orders")

	require.Len(t, fb.counters, 4)
	assert.Equal(t, call{FilesTotal, 1, Labels{"job": "orders", "outcome": "done"}}, fb.counters[0])
	assert.Equal(t, "failed", fb.counters[1].labels["outcome"])
	assert.Equal(t, call{RowsTotal, 42, Labels{"job": "orders"}}, fb.counters[2])
	assert.Equal(t, call{BatchesTotal, 1, Labels{"job": "orders"}}, fb.counters[3])
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)

	require.NoError(t, Flush())
	assert.Equal(t, 1, fb.flushes)

	SetBackend(nil)
	assert.Same(t, fb, current(), "SetBackend(nil) must keep the backend")
}

package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pq2pg/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()
	_, err := NewBackend(Config{})
	assert.Error(t, err)
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()
	assert.Nil(t, labelsToTags(nil))
	assert.Equal(t, []string{"job:orders", "status:success", "step:load"},
		labelsToTags(metrics.Labels{"step": "load", "status": "success", "job": "orders"}))
}

func TestBackend_SendsOverUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String(), Namespace: "pq2pg."})
	require.NoError(t, err)

	b.IncCounter(metrics.FilesTotal, 2, metrics.Labels{"outcome": "done"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "load"})
	require.NoError(t, b.Flush())

	var got strings.Builder
	buf := make([]byte, 64<<10)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !strings.Contains(got.String(), metrics.StepDuration) || !strings.Contains(got.String(), metrics.FilesTotal) {
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
	}
	assert.Contains(t, got.String(), "pq2pg."+metrics.FilesTotal+":2|c|#outcome:done")
	assert.Contains(t, got.String(), "pq2pg."+metrics.StepDuration+":0.25|h|#step:load")
}

func TestZeroBackendIsSafe(t *testing.T) {
	t.Parallel()
	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	assert.NoError(t, b.Flush())
}

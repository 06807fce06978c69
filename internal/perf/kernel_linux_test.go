//go:build linux

package perf_test

import (
	"testing"

	"codeberg.org/mutker/perfcollector/internal/perf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countSWTaskClock is PERF_COUNT_SW_TASK_CLOCK, nanoseconds on CPU.
const countSWTaskClock = 1

var workSink int

// Runs against the real kernel when the host allows it.
func TestSystemKernelSoftwareCounter(t *testing.T) {
	c := perf.NewCounter("task-clock", perf.TypeSoftware, countSWTaskClock, perf.SystemKernel())
	if err := c.Open(perf.CallingProcess, perf.AnyCPU, perf.NoGroup); err != nil {
		t.Skipf("perf_event_open unavailable: %v", err)
	}
	defer c.Close()

	require.NoError(t, c.Start())
	sum := 0
	for i := 0; i < 10_000_000; i++ {
		sum += i ^ (sum >> 3)
	}
	workSink = sum

	v, err := c.Read()
	require.NoError(t, err)
	assert.Positive(t, v, "task clock must advance while the test runs")

	require.NoError(t, c.Stop())
	stopped, err := c.Read()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stopped, v)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, perf.StateUnopened, c.State())
}

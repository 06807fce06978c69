package exporter_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/exporter"
	"codeberg.org/mutker/perfcollector/internal/logger"
	"codeberg.org/mutker/perfcollector/internal/sampler"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorBeforeFirstSample(t *testing.T) {
	c := exporter.NewCollector()

	assert.Equal(t, 1, testutil.CollectAndCount(c))
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(`
# HELP perfcollector_samples_total Samples taken since start.
# TYPE perfcollector_samples_total counter
perfcollector_samples_total 0
`)))
}

func TestCollectorReportsLatestSample(t *testing.T) {
	c := exporter.NewCollector()
	c.Observe(sampler.Sample{Timestamp: time.Unix(1, 0), Cycles: 1, Instructions: 1, CPI: 1})
	c.Observe(sampler.Sample{
		Timestamp:    time.Unix(1700000000, 0),
		Cycles:       1000,
		Instructions: 500,
		CacheMisses:  7,
		BranchMisses: 3,
		CPI:          2,
		Degraded:     []string{"cache_misses"},
	})

	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(`
# HELP perfcollector_cpi Cycles per instruction of the latest sample, 0 when no instruction retired.
# TYPE perfcollector_cpi gauge
perfcollector_cpi 2
# HELP perfcollector_cycles CPU cycles counted since sampling started, user space only.
# TYPE perfcollector_cycles counter
perfcollector_cycles 1000
# HELP perfcollector_counter_degraded 1 when the counter could not be read in the latest sample.
# TYPE perfcollector_counter_degraded gauge
perfcollector_counter_degraded{counter="cache_misses"} 1
# HELP perfcollector_samples_total Samples taken since start.
# TYPE perfcollector_samples_total counter
perfcollector_samples_total 2
`), "perfcollector_cpi", "perfcollector_cycles", "perfcollector_counter_degraded", "perfcollector_samples_total"))
}

func TestExporterServesMetrics(t *testing.T) {
	e := exporter.New("127.0.0.1:0", logger.Default())
	require.NoError(t, e.Start())
	defer e.Close()

	require.NoError(t, e.WriteHeader())
	require.NoError(t, e.Write(context.Background(), sampler.Sample{
		Timestamp:    time.Now(),
		Cycles:       1000,
		Instructions: 500,
		CPI:          2,
	}))

	resp, err := http.Get("http://" + e.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "perfcollector_instructions 500")
	assert.Contains(t, string(body), "perfcollector_cpi 2")

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestExporterListenFailure(t *testing.T) {
	first := exporter.New("127.0.0.1:0", logger.Default())
	require.NoError(t, first.Start())
	defer first.Close()

	second := exporter.New(first.Addr(), logger.Default())
	err := second.Start()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, exporter.ErrListen))
	assert.NoError(t, second.Close())
}

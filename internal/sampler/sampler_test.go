package sampler_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/logger"
	"codeberg.org/mutker/perfcollector/internal/perf"
	"codeberg.org/mutker/perfcollector/internal/perf/perftest"
	"codeberg.org/mutker/perfcollector/internal/sampler"
	"codeberg.org/mutker/perfcollector/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records samples and cancels the run after limit writes.
type captureSink struct {
	mu      sync.Mutex
	next    sampler.Sink
	limit   int
	cancel  context.CancelFunc
	samples []sampler.Sample
	headers int
	closed  int
	kernel  *perftest.Kernel
	enabled []bool
	failErr error
}

func (c *captureSink) WriteHeader() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers++
	if c.next != nil {
		return c.next.WriteHeader()
	}
	return nil
}

func (c *captureSink) Write(ctx context.Context, s sampler.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.samples = append(c.samples, s)
	if c.kernel != nil {
		c.enabled = append(c.enabled, c.kernel.Enabled(perf.CountHWCPUCycles))
	}
	if c.next != nil {
		if err := c.next.Write(ctx, s); err != nil {
			return err
		}
	}
	if len(c.samples) >= c.limit {
		c.cancel()
	}
	return nil
}

func (c *captureSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	if c.next != nil {
		return c.next.Close()
	}
	return nil
}

func fastConfig() sampler.Config {
	cfg := sampler.DefaultConfig()
	cfg.Interval = time.Millisecond
	return cfg
}

func run(t *testing.T, k *perftest.Kernel, limit int, opts ...sampler.Option) (*captureSink, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	capture := &captureSink{limit: limit, cancel: cancel, kernel: k}
	s, err := sampler.New(fastConfig(), k, func() (sampler.Sink, error) { return capture, nil }, opts...)
	require.NoError(t, err)

	return capture, s.Run(ctx)
}

func TestRunWritesCSVRecord(t *testing.T) {
	k := perftest.New()
	k.SetValues(perf.CountHWCPUCycles, 1000)
	k.SetValues(perf.CountHWInstructions, 500)
	path := filepath.Join(t.TempDir(), "perf_data.csv")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var capture *captureSink
	s, err := sampler.New(fastConfig(), k, func() (sampler.Sink, error) {
		csv, err := sink.OpenCSV(path)
		if err != nil {
			return nil, err
		}
		capture = &captureSink{next: csv, limit: 1, cancel: cancel}
		return capture, nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, sink.Header, lines[0])

	ts, rest, ok := strings.Cut(lines[1], ",")
	require.True(t, ok)
	ms, err := strconv.ParseInt(ts, 10, 64)
	require.NoError(t, err)
	assert.Equal(t, capture.samples[0].TimestampMillis(), ms)
	assert.Equal(t, "1000,500,0,0,2", rest)
}

func TestRunSamplesEnabledCountersUntilCancelled(t *testing.T) {
	k := perftest.New()
	k.SetValues(perf.CountHWCPUCycles, 10, 20, 30)
	k.SetValues(perf.CountHWInstructions, 5, 10, 10)

	capture, err := run(t, k, 5)
	require.NoError(t, err)

	require.Len(t, capture.samples, 5)
	assert.Equal(t, 1, capture.headers)
	assert.Equal(t, 1, capture.closed)

	first := capture.samples[0]
	assert.EqualValues(t, 10, first.Cycles)
	assert.EqualValues(t, 5, first.Instructions)
	assert.Equal(t, 2.0, first.CPI)
	assert.Empty(t, first.Degraded)

	last := capture.samples[4]
	assert.EqualValues(t, 30, last.Cycles)
	assert.Equal(t, 3.0, last.CPI)

	for i, enabled := range capture.enabled {
		assert.True(t, enabled, "counter not enabled at sample %d", i)
	}

	assert.Zero(t, k.OpenCount(), "counters must be released after cancellation")
	assert.Equal(t, 4, k.Closed())
}

// The scripted times have no monotonic reading, so this covers the wall-time
// comparison directly.
func TestRunTimestampsNeverGoBackwards(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	offsets := []time.Duration{0, 100, 50, 300, 200, 400}
	i := 0
	clock := func() time.Time {
		d := offsets[i%len(offsets)]
		i++
		return base.Add(d * time.Millisecond)
	}

	capture, err := run(t, perftest.New(), len(offsets), sampler.WithClock(clock))
	require.NoError(t, err)

	require.Len(t, capture.samples, len(offsets))
	for j := 1; j < len(capture.samples); j++ {
		prev := capture.samples[j-1].TimestampMillis()
		cur := capture.samples[j].TimestampMillis()
		assert.GreaterOrEqual(t, cur, prev, "sample %d", j)
	}
	assert.Equal(t, int64(1700000000100), capture.samples[2].TimestampMillis())
}

// time.Now values carry a monotonic reading that Before would compare instead
// of the wall time written to the record.
func TestRunTimestampsUseWallClock(t *testing.T) {
	capture, err := run(t, perftest.New(), 3, sampler.WithClock(time.Now))
	require.NoError(t, err)

	require.Len(t, capture.samples, 3)
	for j, s := range capture.samples {
		assert.NotContains(t, s.Timestamp.String(), "m=", "sample %d keeps a monotonic reading", j)
		if j > 0 {
			assert.GreaterOrEqual(t, s.TimestampMillis(), capture.samples[j-1].TimestampMillis())
		}
	}
}

func TestRunAcquisitionFailurePreventsSink(t *testing.T) {
	selectors := []uint64{
		perf.CountHWCPUCycles,
		perf.CountHWInstructions,
		perf.CountHWCacheMisses,
		perf.CountHWBranchMisses,
	}

	for _, sel := range selectors {
		k := perftest.New()
		k.FailOpen(sel, nil)
		path := filepath.Join(t.TempDir(), "perf_data.csv")
		opened := false

		s, err := sampler.New(fastConfig(), k, func() (sampler.Sink, error) {
			opened = true
			return sink.OpenCSV(path)
		})
		require.NoError(t, err)

		err = s.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrAcquisition), "selector %d", sel)
		assert.False(t, opened, "sink opened despite acquisition failure (selector %d)", sel)
		assert.NoFileExists(t, path)
		assert.Zero(t, k.OpenCount(), "partially opened counters leaked (selector %d)", sel)
	}
}

func TestRunSinkFailureReleasesCounters(t *testing.T) {
	k := perftest.New()

	s, err := sampler.New(fastConfig(), k, func() (sampler.Sink, error) {
		return nil, io.ErrClosedPipe
	})
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSinkOpen))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	assert.Equal(t, 4, k.Opened())
	assert.Zero(t, k.OpenCount())
	assert.Empty(t, k.Controls(), "counters must not be started")
}

func TestRunRecordsDegradedCounters(t *testing.T) {
	k := perftest.New()
	k.SetValues(perf.CountHWCPUCycles, 1000)
	k.SetValues(perf.CountHWInstructions, 500)
	k.SetValues(perf.CountHWCacheMisses, 42)
	k.FailRead(perf.CountHWCacheMisses, nil)

	capture, err := run(t, k, 2)
	require.NoError(t, err)

	require.Len(t, capture.samples, 2)
	for _, s := range capture.samples {
		assert.Zero(t, s.CacheMisses)
		assert.Equal(t, []string{"cache_misses"}, s.Degraded)
		assert.EqualValues(t, 1000, s.Cycles)
	}
}

func TestCounterSetReadLogsDegradedCounter(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, "warning")
	t.Cleanup(func() { logger.InitWriter(io.Discard, "info") })

	k := perftest.New()
	k.SetValues(perf.CountHWCPUCycles, 1000)
	k.FailRead(perf.CountHWBranchMisses, nil)

	cs := sampler.NewCounterSet(sampler.DefaultCounters(), k)
	require.NoError(t, cs.OpenAll(perf.CallingProcess, perf.AnyCPU))
	defer cs.Close()
	require.NoError(t, cs.StartAll())

	s := cs.Read()
	assert.Equal(t, []string{"branch_misses"}, s.Degraded)
	assert.EqualValues(t, 1000, s.Cycles)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"counter":"branch_misses"`)
	assert.Contains(t, out, `"message":"Counter read failed"`)
	assert.Equal(t, 1, strings.Count(out, "\n"), "one warning per failed counter")
}

func TestRunSinkWriteFailureStopsLoop(t *testing.T) {
	k := perftest.New()
	capture := &captureSink{failErr: io.ErrShortWrite}

	s, err := sampler.New(fastConfig(), k, func() (sampler.Sink, error) { return capture, nil })
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSinkWrite))
	assert.Equal(t, 1, capture.closed)
	assert.Zero(t, k.OpenCount())
}

func TestRunStopsImmediatelyWhenAlreadyCancelled(t *testing.T) {
	k := perftest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	capture := &captureSink{limit: 1, cancel: cancel}
	s, err := sampler.New(fastConfig(), k, func() (sampler.Sink, error) { return capture, nil })
	require.NoError(t, err)

	require.NoError(t, s.Run(ctx))
	assert.Empty(t, capture.samples)
	assert.Equal(t, 1, capture.closed)
	assert.Zero(t, k.OpenCount())
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	opener := func() (sampler.Sink, error) { return nil, nil }

	_, err := sampler.New(sampler.DefaultConfig(), nil, opener)
	assert.Error(t, err)

	_, err = sampler.New(sampler.DefaultConfig(), perftest.New(), nil)
	assert.Error(t, err)

	cfg := sampler.DefaultConfig()
	cfg.Interval = -time.Second
	_, err = sampler.New(cfg, perftest.New(), opener)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestCounterSetOpenAllIsAllOrNothing(t *testing.T) {
	k := perftest.New()
	k.FailOpen(perf.CountHWBranchMisses, nil)
	cs := sampler.NewCounterSet(sampler.DefaultCounters(), k)

	err := cs.OpenAll(perf.CallingProcess, perf.AnyCPU)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch_misses")
	for name, state := range cs.States() {
		assert.Equal(t, perf.StateUnopened, state, name)
	}
	assert.Equal(t, 3, k.Closed())
	assert.NoError(t, cs.Close())
}

package sink_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/sampler"
	"codeberg.org/mutker/perfcollector/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWritesHeaderAndRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf_data.csv")

	c, err := sink.OpenCSV(path)
	require.NoError(t, err)

	require.NoError(t, c.WriteHeader())
	require.NoError(t, c.Write(context.Background(), sampler.Sample{
		Timestamp:    time.UnixMilli(1700000000123),
		Cycles:       1000,
		Instructions: 500,
		CPI:          sampler.ComputeCPI(1000, 500),
	}))
	require.NoError(t, c.Write(context.Background(), sampler.Sample{
		Timestamp:    time.UnixMilli(1700000000223),
		Cycles:       4,
		Instructions: 3,
		CacheMisses:  7,
		BranchMisses: 9,
		CPI:          sampler.ComputeCPI(4, 3),
	}))

	// Records are synced as they are written, before Close.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"timestamp,cycles,instructions,cache_misses,branch_misses,cpi\n"+
			"1700000000123,1000,500,0,0,2\n"+
			"1700000000223,4,3,7,9,1.33333\n",
		string(data))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestCSVTruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale contents from a previous run\n"), 0o600))

	c, err := sink.OpenCSV(path)
	require.NoError(t, err)
	require.NoError(t, c.WriteHeader())
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sink.Header+"\n", string(data))
}

func TestCSVOpenFailure(t *testing.T) {
	_, err := sink.OpenCSV(filepath.Join(t.TempDir(), "missing", "perf_data.csv"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sink.ErrCreateFile))
}

func TestCSVWriteAfterClose(t *testing.T) {
	c, err := sink.OpenCSV(filepath.Join(t.TempDir(), "perf_data.csv"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	err = c.Write(context.Background(), sampler.Sample{})
	assert.True(t, errors.HasCode(err, sink.ErrClosed))
}

func TestAppendCPI(t *testing.T) {
	cases := map[float64]string{
		0:                        "0",
		2:                        "2",
		0.5:                      "0.5",
		1.0 / 3.0:                "0.333333",
		1234567:                  "1.23457e+06",
		sampler.ComputeCPI(0, 0): "0",
	}
	for in, want := range cases {
		assert.Equal(t, want, string(sink.AppendCPI(nil, in)), "cpi %v", in)
	}
}

type recordingSink struct {
	headers, writes, closes int
	err                     error
}

func (r *recordingSink) WriteHeader() error { r.headers++; return r.err }
func (r *recordingSink) Write(context.Context, sampler.Sample) error {
	r.writes++
	return r.err
}
func (r *recordingSink) Close() error { r.closes++; return r.err }

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := sink.Multi(a, b)

	require.NoError(t, m.WriteHeader())
	require.NoError(t, m.Write(context.Background(), sampler.Sample{}))
	require.NoError(t, m.Close())

	for _, r := range []*recordingSink{a, b} {
		assert.Equal(t, 1, r.headers)
		assert.Equal(t, 1, r.writes)
		assert.Equal(t, 1, r.closes)
	}
}

func TestMultiClosesAllOnError(t *testing.T) {
	a, b := &recordingSink{err: io.ErrClosedPipe}, &recordingSink{}
	m := sink.Multi(a, b)

	assert.ErrorIs(t, m.Write(context.Background(), sampler.Sample{}), io.ErrClosedPipe)
	assert.Zero(t, b.writes)

	assert.ErrorIs(t, m.Close(), io.ErrClosedPipe)
	assert.Equal(t, 1, b.closes)
}

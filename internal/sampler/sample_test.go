package sampler_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/perfcollector/internal/sampler"
	"github.com/stretchr/testify/assert"
)

func TestComputeCPI(t *testing.T) {
	cases := []struct {
		cycles, instructions uint64
		want                 float64
	}{
		{0, 0, 0},
		{100, 0, 0},
		{0, 100, 0},
		{1000, 500, 2},
		{500, 1000, 0.5},
		{3, 3, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sampler.ComputeCPI(tc.cycles, tc.instructions),
			"cycles=%d instructions=%d", tc.cycles, tc.instructions)
	}
}

func TestTimestampMillis(t *testing.T) {
	s := sampler.Sample{Timestamp: time.Unix(1700000000, 123_456_789)}
	assert.Equal(t, int64(1700000000123), s.TimestampMillis())
}

func TestConfigValidate(t *testing.T) {
	cfg := sampler.DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.Interval)

	cfg.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg = sampler.DefaultConfig()
	cfg.Counters.CacheMisses.Name = ""
	assert.Error(t, cfg.Validate())
}

package sampler

import (
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/perf"
)

const (
	// DefaultInterval is the period between two samples
	DefaultInterval = 100 * time.Millisecond
)

// CounterSpec names one counter of the set.
type CounterSpec struct {
	Name   string
	Type   perf.Type
	Config uint64
}

// Counters is the fixed counter set, in sampling order.
type Counters struct {
	Cycles       CounterSpec
	Instructions CounterSpec
	CacheMisses  CounterSpec
	BranchMisses CounterSpec
}

func (c Counters) all() [4]CounterSpec {
	return [4]CounterSpec{c.Cycles, c.Instructions, c.CacheMisses, c.BranchMisses}
}

// DefaultCounters returns the four generalized hardware events.
func DefaultCounters() Counters {
	return Counters{
		Cycles:       CounterSpec{Name: "cycles", Type: perf.TypeHardware, Config: perf.CountHWCPUCycles},
		Instructions: CounterSpec{Name: "instructions", Type: perf.TypeHardware, Config: perf.CountHWInstructions},
		CacheMisses:  CounterSpec{Name: "cache_misses", Type: perf.TypeHardware, Config: perf.CountHWCacheMisses},
		BranchMisses: CounterSpec{Name: "branch_misses", Type: perf.TypeHardware, Config: perf.CountHWBranchMisses},
	}
}

type Config struct {
	Interval time.Duration
	Counters Counters
	// Target process and CPU for every counter
	PID int
	CPU int
}

func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Counters: DefaultCounters(),
		PID:      perf.CallingProcess,
		CPU:      perf.AnyCPU,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	for _, counter := range c.Counters.all() {
		if counter.Name == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "counter name must not be empty")
		}
	}

	return nil
}

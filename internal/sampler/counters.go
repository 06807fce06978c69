package sampler

import (
	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/logger"
	"codeberg.org/mutker/perfcollector/internal/perf"
)

// CounterSet owns the four counters of a run.
type CounterSet struct {
	Cycles       *perf.Counter
	Instructions *perf.Counter
	CacheMisses  *perf.Counter
	BranchMisses *perf.Counter
}

func NewCounterSet(specs Counters, kernel perf.Kernel) *CounterSet {
	newCounter := func(s CounterSpec) *perf.Counter {
		return perf.NewCounter(s.Name, s.Type, s.Config, kernel)
	}

	return &CounterSet{
		Cycles:       newCounter(specs.Cycles),
		Instructions: newCounter(specs.Instructions),
		CacheMisses:  newCounter(specs.CacheMisses),
		BranchMisses: newCounter(specs.BranchMisses),
	}
}

func (cs *CounterSet) all() [4]*perf.Counter {
	return [4]*perf.Counter{cs.Cycles, cs.Instructions, cs.CacheMisses, cs.BranchMisses}
}

// OpenAll opens every counter. A single failure closes the ones already
// opened: the set is usable only as a whole.
func (cs *CounterSet) OpenAll(pid, cpu int) error {
	for _, c := range cs.all() {
		if err := c.Open(pid, cpu, perf.NoGroup); err != nil {
			_ = cs.Close()
			return errors.New().Wrap(errors.ErrAcquisition, err)
		}
		logger.Debug().Str("counter", c.Name()).Msg("Counter opened")
	}

	return nil
}

// StartAll resets and enables every counter.
func (cs *CounterSet) StartAll() error {
	for _, c := range cs.all() {
		if err := c.Start(); err != nil {
			return errors.New().Wrap(errors.ErrStartCounter, err)
		}
	}

	return nil
}

// StopAll disables every counter, returning the first error.
func (cs *CounterSet) StopAll() error {
	var first error
	for _, c := range cs.all() {
		if err := c.Stop(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Read fills a sample from the current counts. Failed reads are recorded as 0
// and listed in Sample.Degraded.
func (cs *CounterSet) Read() Sample {
	var s Sample
	read := func(c *perf.Counter) uint64 {
		v, err := c.Read()
		if err != nil {
			s.Degraded = append(s.Degraded, c.Name())
			logger.Warn().Err(err).Str("counter", c.Name()).Msg("Counter read failed")
			return 0
		}
		return v
	}

	s.Cycles = read(cs.Cycles)
	s.Instructions = read(cs.Instructions)
	s.CacheMisses = read(cs.CacheMisses)
	s.BranchMisses = read(cs.BranchMisses)
	s.CPI = ComputeCPI(s.Cycles, s.Instructions)

	return s
}

// Close releases every counter. It is safe to call more than once.
func (cs *CounterSet) Close() error {
	var errs []error
	for _, c := range cs.all() {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// States reports the state of each counter by name.
func (cs *CounterSet) States() map[string]perf.State {
	states := make(map[string]perf.State, 4)
	for _, c := range cs.all() {
		states[c.Name()] = c.State()
	}

	return states
}

package sampler

import (
	"context"
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/logger"
	"codeberg.org/mutker/perfcollector/internal/perf"
)

// Sampler drives the counter set and writes one sample per interval.
type Sampler struct {
	cfg      Config
	kernel   perf.Kernel
	openSink SinkOpener
	now      func() time.Time
	last     time.Time
}

// Option customizes a Sampler
type Option func(*Sampler)

// WithClock replaces the wall clock used for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		s.now = now
	}
}

func New(cfg Config, kernel perf.Kernel, openSink SinkOpener, opts ...Option) (*Sampler, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if kernel == nil || openSink == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "kernel and sink opener are required")
	}

	s := &Sampler{
		cfg:      cfg,
		kernel:   kernel,
		openSink: openSink,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run acquires the counters, opens the sink and samples until ctx is
// cancelled. A cancelled context is a normal stop and returns nil.
func (s *Sampler) Run(ctx context.Context) error {
	errFactory := errors.New()

	counters := NewCounterSet(s.cfg.Counters, s.kernel)
	if err := counters.OpenAll(s.cfg.PID, s.cfg.CPU); err != nil {
		return err
	}
	defer func() {
		if err := counters.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release counters")
		}
	}()

	sink, err := s.openSink()
	if err != nil {
		return errFactory.Wrap(errors.ErrSinkOpen, err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close sink")
		}
	}()

	if err := sink.WriteHeader(); err != nil {
		return errFactory.Wrap(errors.ErrSinkWrite, err)
	}

	if err := counters.StartAll(); err != nil {
		return err
	}
	defer func() {
		if err := counters.StopAll(); err != nil {
			logger.Debug().Err(err).Msg("Failed to stop counters")
		}
	}()

	logger.Info().
		Dur("interval", s.cfg.Interval).
		Msg("Sampling started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("Sampling stopped")
			return nil
		}

		if err := s.sample(ctx, counters, sink); err != nil {
			// A sink giving up because of the stop request is not a failure.
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				logger.Info().Msg("Sampling stopped")
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

func (s *Sampler) sample(ctx context.Context, counters *CounterSet, sink Sink) error {
	// Round(0) drops the monotonic reading so the clamp compares wall time,
	// which is what the records carry.
	ts := s.now().Round(0)
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts

	sample := counters.Read()
	sample.Timestamp = ts

	if err := sink.Write(ctx, sample); err != nil {
		return errors.New().Wrap(errors.ErrSinkWrite, err)
	}

	logger.Debug().
		Int64("timestamp", sample.TimestampMillis()).
		Uint64("cycles", sample.Cycles).
		Uint64("instructions", sample.Instructions).
		Uint64("cache_misses", sample.CacheMisses).
		Uint64("branch_misses", sample.BranchMisses).
		Float64("cpi", sample.CPI).
		Msg("Sample written")

	return nil
}

package sink

import (
	"context"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/sampler"
)

type multi []sampler.Sink

// Multi fans every call out to sinks in order. Writes stop at the first
// failing sink; Close closes all of them.
func Multi(sinks ...sampler.Sink) sampler.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}

	return multi(sinks)
}

func (m multi) WriteHeader() error {
	for _, s := range m {
		if err := s.WriteHeader(); err != nil {
			return err
		}
	}

	return nil
}

func (m multi) Write(ctx context.Context, sample sampler.Sample) error {
	for _, s := range m {
		if err := s.Write(ctx, sample); err != nil {
			return err
		}
	}

	return nil
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

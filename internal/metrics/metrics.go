package metrics

import (
	"context"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/logger"
	"codeberg.org/mutker/perfcollector/internal/sampler"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopArchive struct{}

// NewService returns a sampler.Sink archiving samples to SQLite, or a no-op
// sink when the archive is disabled.
func NewService(cfg Config, log logger.Logger) (sampler.Sink, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Sample archive disabled, using no-op sink")
		return noopArchive{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Sample archive initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

// WriteHeader is a no-op: the schema is created with the repository.
func (*service) WriteHeader() error {
	return nil
}

func (s *service) Write(ctx context.Context, sample sampler.Sample) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(sample); err != nil {
			return errFactory.Wrap(ErrSampleArchive, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(errors.ErrSinkClose, err)
	}
	return nil
}

func (noopArchive) WriteHeader() error { return nil }

func (noopArchive) Write(context.Context, sampler.Sample) error { return nil }

func (noopArchive) Close() error { return nil }

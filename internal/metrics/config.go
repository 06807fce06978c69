package metrics

import (
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm       = 0o755
	defaultDBPath        = "/var/lib/perfcollector/samples.db"
	defaultBatchSize     = 10
	defaultFlushInterval = 5 * time.Second
	backupDirName        = "backups"
)

type Config struct {
	DBPath        string
	Enabled       bool
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		DBPath:        defaultDBPath,
		Enabled:       false, // Disabled by default
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate when the archive is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be at least 1")
	}

	return nil
}

package sampler

import (
	"context"
	"time"
)

// Sample is one interval's reading of the counter set.
type Sample struct {
	Timestamp    time.Time
	Cycles       uint64
	Instructions uint64
	CacheMisses  uint64
	BranchMisses uint64
	CPI          float64
	// Degraded lists the counters whose read failed; their values are 0
	Degraded []string
}

// TimestampMillis returns the sample time in milliseconds since the epoch.
func (s Sample) TimestampMillis() int64 {
	return s.Timestamp.UnixMilli()
}

// ComputeCPI returns cycles per instruction, or 0 when no instruction retired.
func ComputeCPI(cycles, instructions uint64) float64 {
	if instructions == 0 {
		return 0
	}

	return float64(cycles) / float64(instructions)
}

// Sink persists samples.
type Sink interface {
	WriteHeader() error
	Write(ctx context.Context, sample Sample) error
	Close() error
}

// SinkOpener creates the sink once the counters are acquired.
type SinkOpener func() (Sink, error)

package perf

import "codeberg.org/mutker/perfcollector/internal/errors"

const (
	ErrOpenFailed    = errors.ErrorCode("perf_counter_open_failed")
	ErrAlreadyOpen   = errors.ErrorCode("perf_counter_already_open")
	ErrNotOpen       = errors.ErrorCode("perf_counter_not_open")
	ErrControlFailed = errors.ErrorCode("perf_counter_control_failed")
	ErrReadFailed    = errors.ErrorCode("perf_counter_read_failed")
	ErrCloseFailed   = errors.ErrorCode("perf_counter_close_failed")
	ErrUnsupported   = errors.ErrUnsupported
)

// counterError is the data attached to counter errors
type counterError struct {
	Counter string
	Op      string
	Error   string
}

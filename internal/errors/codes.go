package errors

// Common error codes
const (
	// System errors
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnsupported     ErrorCode = "unsupported_platform"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidOutput   ErrorCode = "invalid_output_path"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Collection errors
	ErrAcquisition  ErrorCode = "counter_acquisition_failed"
	ErrStartCounter ErrorCode = "counter_start_failed"
	ErrSinkOpen     ErrorCode = "sink_open_failed"
	ErrSinkWrite    ErrorCode = "sample_write_failed"
	ErrSinkClose    ErrorCode = "sink_close_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnsupported:     "Operation not supported on this platform",
	ErrInvalidConfig:   "Invalid configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read config file",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidOutput:   "Invalid output path",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrAlreadyRunning:  "Another collector is already running",
	ErrAcquisition:     "Failed to open performance counters",
	ErrStartCounter:    "Failed to start performance counters",
	ErrSinkOpen:        "Failed to open output sink",
	ErrSinkWrite:       "Failed to write sample",
	ErrSinkClose:       "Failed to close output sink",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

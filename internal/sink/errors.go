package sink

import "codeberg.org/mutker/perfcollector/internal/errors"

const (
	ErrCreateFile  = errors.ErrorCode("sink_create_file_failed")
	ErrWriteRecord = errors.ErrorCode("sink_write_record_failed")
	ErrSyncRecord  = errors.ErrorCode("sink_sync_failed")
	ErrClosed      = errors.ErrorCode("sink_closed")
)

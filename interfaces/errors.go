package interfaces

import "errors"

var (
	// ErrRecordNotFound is returned by RecordStore.Get for unknown records
	ErrRecordNotFound = errors.New("record not found")

	// ErrWriteConflict is returned by RecordStore.UpdateField when the stored
	// value no longer matches the expected prior value
	ErrWriteConflict = errors.New("optimistic write conflict")

	// ErrCheckpointNotFound is returned by CheckpointStore.Get for unknown run IDs
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrStoreUnavailable wraps store-level failures that prevent further
	// progress after bounded retries
	ErrStoreUnavailable = errors.New("store unavailable")
)

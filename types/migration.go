package types

import (
	"time"
)

// RunStatus represents the current state of a migration run
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but not started
	RunStatusPending RunStatus = "pending"

	// RunStatusScanning indicates the run is fetching the next batch
	RunStatusScanning RunStatus = "scanning"

	// RunStatusEncrypting indicates the run is encrypting and committing a batch
	RunStatusEncrypting RunStatus = "encrypting"

	// RunStatusCompleted indicates the run finished with no records remaining
	RunStatusCompleted RunStatus = "completed"

	// RunStatusAborted indicates the run was cancelled by an operator
	RunStatusAborted RunStatus = "aborted"

	// RunStatusFailed indicates the run stopped on an unrecoverable store error
	RunStatusFailed RunStatus = "failed"
)

// Terminal reports whether a run in this status will make no further progress.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted || s == RunStatusFailed
}

// MigrationCounts tracks per-record outcomes of a migration run.
// A record counts as encrypted when at least one of its fields was
// re-encrypted (or staged, in dry-run mode), skipped when every target field
// was already encrypted under the current key version, and failed when its
// fields could not be processed or committed after bounded retries.
type MigrationCounts struct {
	Scanned   int64 `json:"scanned" bson:"scanned"`
	Encrypted int64 `json:"encrypted" bson:"encrypted"`
	Skipped   int64 `json:"skipped" bson:"skipped"`
	Failed    int64 `json:"failed" bson:"failed"`
}

// Checkpoint is the persisted progress marker for a migration run. It is
// written after every committed batch and read back to resume an interrupted
// run. LastKey advances strictly in primary-key order.
type Checkpoint struct {
	RunID       string          `json:"runId" bson:"_id"`
	Table       string          `json:"table" bson:"table"`
	Fields      []string        `json:"fields" bson:"fields"`
	Scope       ScopeFilter     `json:"scope,omitempty" bson:"scope,omitempty"`
	DryRun      bool            `json:"dryRun" bson:"dryRun"`
	LastKey     string          `json:"lastKey" bson:"lastKey"`
	Counts      MigrationCounts `json:"counts" bson:"counts"`
	Status      RunStatus       `json:"status" bson:"status"`
	SnapshotID  string          `json:"snapshotId,omitempty" bson:"snapshotId,omitempty"`
	Error       string          `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt   time.Time       `json:"startedAt" bson:"startedAt"`
	UpdatedAt   time.Time       `json:"updatedAt" bson:"updatedAt"`
	CompletedAt time.Time       `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// SnapshotEntry is one pre-image captured before a real (non-dry-run)
// migration write. Rollback replays entries verbatim.
type SnapshotEntry struct {
	Table    string    `json:"table" bson:"table"`
	RecordID string    `json:"recordId" bson:"recordId"`
	Field    string    `json:"field" bson:"field"`
	Value    string    `json:"value" bson:"value"`
	TakenAt  time.Time `json:"takenAt" bson:"takenAt"`
}

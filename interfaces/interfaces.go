// Package interfaces defines all service interfaces for the module.
// IMPORTANT: This is the single source of truth for service interfaces.
// Do not define interfaces in other files.
package interfaces

import (
	"context"
	"time"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// Store Interfaces

// RecordStore is the narrow view of the external persistence layer the
// migration engine depends on: an ordered range scan by primary key, point
// reads, and conditional (compare-and-set) field updates. No schema or query
// language is prescribed.
type RecordStore interface {
	// Scan returns up to limit records with primary key strictly greater
	// than afterKey, in ascending key order, restricted by the scope filter.
	Scan(ctx context.Context, table string, afterKey string, limit int, scope types.ScopeFilter) ([]types.Record, error)

	// Get returns a single record, or ErrRecordNotFound.
	Get(ctx context.Context, table string, id string) (*types.Record, error)

	// UpdateField sets field to value iff the stored value still equals
	// expected. Returns ErrWriteConflict when the record changed since read.
	UpdateField(ctx context.Context, table string, id string, field string, expected string, value string) error

	// PutField unconditionally writes a field value. Used by rollback only.
	PutField(ctx context.Context, table string, id string, field string, value string) error
}

// CheckpointStore persists migration progress markers.
type CheckpointStore interface {
	// Get returns the checkpoint with the given run ID, or ErrCheckpointNotFound.
	Get(ctx context.Context, runID string) (*types.Checkpoint, error)

	// FindByTable returns the most recently started checkpoint for a table,
	// or nil when the table has never been migrated.
	FindByTable(ctx context.Context, table string) (*types.Checkpoint, error)

	// Save creates or replaces a checkpoint.
	Save(ctx context.Context, cp *types.Checkpoint) error
}

// SnapshotStore persists pre-images of migrated fields so a run can be
// rolled back. Long-term backup storage is an external concern; entries only
// need to survive until the run is verified.
type SnapshotStore interface {
	// Append stores pre-images for one batch of a run.
	Append(ctx context.Context, snapshotID string, entries []types.SnapshotEntry) error

	// List returns every pre-image captured under a snapshot ID.
	List(ctx context.Context, snapshotID string) ([]types.SnapshotEntry, error)

	// Delete discards a snapshot after the run has been verified.
	Delete(ctx context.Context, snapshotID string) error
}

// Audit Interfaces

// AuditLogger receives audit events as they are emitted. Implementations
// must not block the calling operation; delivery failures are logged, never
// propagated to encryption callers.
type AuditLogger interface {
	// LogEvent logs an audit event
	LogEvent(ctx context.Context, event *types.AuditEvent) error
}

// Field Encryption Interfaces

// FieldService encrypts and decrypts individually named sensitive fields.
// All methods are safe for concurrent use; batch methods share no mutable
// state across elements. Batch calls emit one audit event per field
// operation, the same as the single-field calls.
type FieldService interface {
	// EncryptField encrypts value according to the policy for fieldName.
	// Non-sensitive fields and empty values pass through unchanged.
	EncryptField(ctx context.Context, fieldName string, value string) (string, error)

	// DecryptField is the inverse of EncryptField. Values not recognizable
	// as encoded payloads pass through unchanged, tolerating plaintext rows
	// during migration windows.
	DecryptField(ctx context.Context, fieldName string, value string) (string, error)

	// EncryptRecord applies EncryptField to every policy-covered field
	// present in the record. The output record has the same key set as the
	// input; unknown fields pass through untouched.
	EncryptRecord(ctx context.Context, record types.Record) (types.Record, error)

	// DecryptRecord is the inverse of EncryptRecord.
	DecryptRecord(ctx context.Context, record types.Record) (types.Record, error)

	// EncryptBatch applies EncryptRecord element-wise. Per-record failures
	// are collected and returned alongside the successes; a poison record
	// never aborts the rest of the batch.
	EncryptBatch(ctx context.Context, records []types.Record) ([]types.Record, []types.RecordError)

	// DecryptBatch is the inverse of EncryptBatch.
	DecryptBatch(ctx context.Context, records []types.Record) ([]types.Record, []types.RecordError)

	// VerifyEncryption round-trips a known fixture through the cipher
	// engine. Used as a readiness probe.
	VerifyEncryption(ctx context.Context) types.VerifyResult

	// Stats returns a snapshot of the operation counters.
	Stats() types.FieldStats
}

// Cache Interfaces

// Storage defines the interface for cache storage backends
type Storage interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

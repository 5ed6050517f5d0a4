package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// Operations and outcomes carried on audit events.
const (
	OperationEncrypt = "encrypt"
	OperationDecrypt = "decrypt"
	OperationMigrate = "migrate"

	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// NewEvent creates an audit event with essential fields populated.
func NewEvent(operation, field string, keyVersion uint32) *types.AuditEvent {
	return &types.AuditEvent{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Operation:  operation,
		Field:      field,
		Outcome:    OutcomeSuccess,
		KeyVersion: keyVersion,
		Context:    make(map[string]string),
	}
}

// WithTable adds the table/collection name to the context.
func WithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, KeyTable, table)
}

// WithRecordID adds the record identifier to the context.
func WithRecordID(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, KeyRecordID, recordID)
}

// WithTenant adds the tenant/organization scope to the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, KeyTenant, tenantID)
}

// WithRunID adds the migration run identifier to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, KeyRunID, runID)
}

// Enrich copies any audit values present on the context onto the event.
func Enrich(ctx context.Context, event *types.AuditEvent) *types.AuditEvent {
	if event.Context == nil {
		event.Context = make(map[string]string)
	}
	for _, key := range []ContextKey{KeyTable, KeyRecordID, KeyTenant, KeyRunID} {
		if val, ok := ctx.Value(key).(string); ok && val != "" {
			if key == KeyRecordID {
				event.RecordID = val
				continue
			}
			event.Context[string(key)] = val
		}
	}
	return event
}

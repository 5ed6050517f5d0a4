// Package audit provides audit event construction and emission for
// encryption operations. Events are handed to the external audit
// collaborator; this package never persists them and never blocks the
// operation that emitted them.
package audit

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// Context keys for encryption operations
const (
	KeyTable    ContextKey = "table"    // table/collection being operated on
	KeyRecordID ContextKey = "recordId" // record identifier
	KeyField    ContextKey = "field"    // field being encrypted/decrypted
	KeyTenant   ContextKey = "tenantId" // tenant/organization scope if applicable
	KeyRunID    ContextKey = "runId"    // migration run identifier
	KeyError    ContextKey = "error"    // error message if operation failed
)

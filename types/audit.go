package types

import (
	"time"
)

// AuditEvent records one encryption-related operation. Events are emitted to
// the external audit collaborator; the core never persists them.
type AuditEvent struct {
	ID         string            `json:"id" bson:"_id"`
	Timestamp  time.Time         `json:"timestamp" bson:"timestamp"`
	Operation  string            `json:"operation" bson:"operation"` // encrypt, decrypt, migrate
	Field      string            `json:"field,omitempty" bson:"field,omitempty"`
	RecordID   string            `json:"recordId,omitempty" bson:"recordId,omitempty"`
	Outcome    string            `json:"outcome" bson:"outcome"`
	KeyVersion uint32            `json:"keyVersion,omitempty" bson:"keyVersion,omitempty"`
	Context    map[string]string `json:"context,omitempty" bson:"context,omitempty"`
}

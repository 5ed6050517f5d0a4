package types

import (
	"time"
)

// FieldPolicy declares how one named field is handled by the field encryptor.
// The policy set is static per deployment and must be identical on the
// encrypt and decrypt paths.
type FieldPolicy struct {
	Name      string `json:"name" bson:"name"`
	Sensitive bool   `json:"sensitive" bson:"sensitive"`
}

// FieldStats holds statistics about field encryption operations
type FieldStats struct {
	TotalEncrypts   uint64    `json:"totalEncrypts" bson:"totalEncrypts"`
	TotalDecrypts   uint64    `json:"totalDecrypts" bson:"totalDecrypts"`
	TotalFailures   uint64    `json:"totalFailures" bson:"totalFailures"`
	LastEncryptTime time.Time `json:"lastEncryptTime" bson:"lastEncryptTime"`
	LastDecryptTime time.Time `json:"lastDecryptTime" bson:"lastDecryptTime"`
	LastOpTime      time.Time `json:"lastOpTime" bson:"lastOpTime"`
}

// VerifyResult is the outcome of the encryptor self-test used as a readiness
// probe.
type VerifyResult struct {
	OK         bool   `json:"ok"`
	KeyVersion uint32 `json:"keyVersion"`
	Details    string `json:"details,omitempty"`
}

// RecordError reports a per-record failure from a batch operation. Batch
// calls return these alongside the successfully processed records rather
// than aborting the whole batch.
type RecordError struct {
	Index    int    `json:"index"`
	RecordID string `json:"recordId,omitempty"`
	Field    string `json:"field,omitempty"`
	Err      error  `json:"-"`
}

func (e RecordError) Error() string {
	if e.Err == nil {
		return "record error"
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e RecordError) Unwrap() error { return e.Err }

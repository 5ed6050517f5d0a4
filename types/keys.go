package types

import (
	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
)

// KeySpec describes one versioned key as provided by the host application at
// startup. The material is either given directly (base64-encoded 32 bytes) or
// as a KMS-wrapped blob that is unwrapped once during provisioning.
// Exactly one spec in a provisioning list must be flagged Current.
type KeySpec struct {
	Version  uint32             `json:"version" bson:"version"`
	Material string             `json:"material,omitempty" bson:"material,omitempty"` // base64 std encoding
	Wrapped  *wrapping.BlobInfo `json:"wrapped,omitempty" bson:"wrapped,omitempty"`
	Current  bool               `json:"current" bson:"current"`
}

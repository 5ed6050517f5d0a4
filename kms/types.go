package kms

import (
	"context"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// Provider represents a KMS provider used to unwrap key material at startup.
type Provider interface {
	// GetWrapper returns the underlying KMS wrapper
	GetWrapper() wrapping.Wrapper

	// Test performs a test encryption/decryption
	Test(ctx context.Context) error

	// HealthCheck performs a comprehensive health check
	HealthCheck(ctx context.Context) error

	// GetLastHealthCheckError returns the last health check error
	GetLastHealthCheckError() error
}

// AWSConfig configures an AWS KMS wrapper.
type AWSConfig struct {
	KeyID       string                `json:"keyId" bson:"keyId"`
	Region      string                `json:"region" bson:"region"`
	Credentials *types.KMSCredentials `json:"credentials,omitempty" bson:"credentials,omitempty"`
}

// AzureConfig configures an Azure Key Vault wrapper.
type AzureConfig struct {
	KeyID        string                `json:"keyId" bson:"keyId"`
	VaultAddress string                `json:"vaultAddress" bson:"vaultAddress"`
	Credentials  *types.KMSCredentials `json:"credentials,omitempty" bson:"credentials,omitempty"`
}

// GCPConfig configures a Google Cloud KMS wrapper. ResourceName is the full
// projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}
// path.
type GCPConfig struct {
	ResourceName string                `json:"resourceName" bson:"resourceName"`
	Credentials  *types.KMSCredentials `json:"credentials,omitempty" bson:"credentials,omitempty"`
}

// VaultConfig configures a HashiCorp Vault Transit wrapper.
type VaultConfig struct {
	KeyID        string                `json:"keyId" bson:"keyId"`
	VaultAddress string                `json:"vaultAddress" bson:"vaultAddress"`
	VaultMount   string                `json:"vaultMount,omitempty" bson:"vaultMount,omitempty"`
	Credentials  *types.KMSCredentials `json:"credentials,omitempty" bson:"credentials,omitempty"`
}

// AeadConfig configures a local AEAD wrapper. Intended for development and
// tests; the key is supplied directly instead of living in a cloud KMS.
type AeadConfig struct {
	KeyID     string `json:"keyId,omitempty" bson:"keyId,omitempty"`
	KeyBase64 string `json:"keyBase64" bson:"keyBase64"`
}

// Config selects and configures one KMS provider.
type Config struct {
	Type  types.ProviderType `json:"type" bson:"type"`
	AWS   *AWSConfig         `json:"aws,omitempty" bson:"aws,omitempty"`
	Azure *AzureConfig       `json:"azure,omitempty" bson:"azure,omitempty"`
	GCP   *GCPConfig         `json:"gcp,omitempty" bson:"gcp,omitempty"`
	Vault *VaultConfig       `json:"vault,omitempty" bson:"vault,omitempty"`
	Aead  *AeadConfig        `json:"aead,omitempty" bson:"aead,omitempty"`
}

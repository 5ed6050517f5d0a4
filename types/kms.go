package types

// ProviderType represents the type of KMS provider used to unwrap key
// material at startup.
type ProviderType string

const (
	ProviderAWS   ProviderType = "aws"
	ProviderAzure ProviderType = "azure"
	ProviderGCP   ProviderType = "gcp"
	ProviderVault ProviderType = "vault"
	ProviderAead  ProviderType = "aead"
)

// KMSCredentials represents KMS provider credentials
type KMSCredentials struct {
	// AWS credentials
	AccessKeyID     string `json:"accessKeyId,omitempty" bson:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" bson:"secretAccessKey,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty" bson:"sessionToken,omitempty"`

	// Azure credentials
	TenantID     string `json:"tenantId,omitempty" bson:"tenantId,omitempty"`
	ClientID     string `json:"clientId,omitempty" bson:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty" bson:"clientSecret,omitempty"`

	// GCP credentials
	CredentialsJSON string `json:"credentialsJson,omitempty" bson:"credentialsJson,omitempty"`

	// Vault credentials
	Token string `json:"token,omitempty" bson:"token,omitempty"`
}

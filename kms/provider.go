// Package kms wires the supported key-management backends behind a single
// Provider interface. The provider's wrapper unwraps stored key material at
// startup; the encryption core itself never talks to a KMS.
package kms

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	kmsaead "github.com/hashicorp/go-kms-wrapping/v2/aead"
	awskms "github.com/hashicorp/go-kms-wrapping/wrappers/awskms/v2"
	azurekeyvault "github.com/hashicorp/go-kms-wrapping/wrappers/azurekeyvault/v2"
	gcpckms "github.com/hashicorp/go-kms-wrapping/wrappers/gcpckms/v2"
	transit "github.com/hashicorp/go-kms-wrapping/wrappers/transit/v2"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/customer-data-protection-module-encryption/keys"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// provider implements the Provider interface
type provider struct {
	wrapper         wrapping.Wrapper
	lastHealthCheck error
}

// NewProvider creates a KMS provider from the configuration.
func NewProvider(config Config) (Provider, error) {
	var wrapper wrapping.Wrapper
	var err error
	ctx := context.Background()

	log.Debug().
		Str("provider", string(config.Type)).
		Msg("Initializing KMS provider")

	switch config.Type {
	case types.ProviderAWS:
		if config.AWS == nil {
			return nil, fmt.Errorf("AWS configuration is missing for provider type %s", config.Type)
		}
		if err = validateAWSConfig(*config.AWS); err != nil {
			return nil, fmt.Errorf("invalid AWS KMS configuration: %w", err)
		}
		wrapper, err = createAWSWrapper(ctx, *config.AWS)
	case types.ProviderAzure:
		if config.Azure == nil {
			return nil, fmt.Errorf("azure configuration is missing for provider type %s", config.Type)
		}
		if err = validateAzureConfig(*config.Azure); err != nil {
			return nil, fmt.Errorf("invalid Azure Key Vault configuration: %w", err)
		}
		wrapper, err = createAzureWrapper(ctx, *config.Azure)
	case types.ProviderGCP:
		if config.GCP == nil {
			return nil, fmt.Errorf("GCP configuration is missing for provider type %s", config.Type)
		}
		if err = validateGCPConfig(*config.GCP); err != nil {
			return nil, fmt.Errorf("invalid GCP KMS configuration: %w", err)
		}
		wrapper, err = createGCPWrapper(ctx, *config.GCP)
	case types.ProviderVault:
		if config.Vault == nil {
			return nil, fmt.Errorf("vault configuration is missing for provider type %s", config.Type)
		}
		if err = validateVaultConfig(*config.Vault); err != nil {
			return nil, fmt.Errorf("invalid Vault configuration: %w", err)
		}
		wrapper, err = createVaultWrapper(ctx, *config.Vault)
	case types.ProviderAead:
		if config.Aead == nil {
			return nil, fmt.Errorf("AEAD configuration is missing for provider type %s", config.Type)
		}
		wrapper, err = createAeadWrapper(ctx, *config.Aead)
	default:
		return nil, fmt.Errorf("unsupported KMS provider type: %s", config.Type)
	}

	if err != nil {
		log.Error().Err(err).Str("provider", string(config.Type)).Msg("Failed to create KMS provider wrapper")
		return nil, fmt.Errorf("failed to create wrapper: %w", err)
	}

	log.Info().
		Str("provider", string(config.Type)).
		Msg("KMS provider initialized")

	return &provider{wrapper: wrapper}, nil
}

// GetWrapper returns the underlying KMS wrapper
func (p *provider) GetWrapper() wrapping.Wrapper {
	return p.wrapper
}

// Test performs a round-trip encryption/decryption against the backend.
func (p *provider) Test(ctx context.Context) error {
	if p.wrapper == nil {
		return fmt.Errorf("wrapper not initialized")
	}

	testData := []byte("test")

	encrypted, err := p.wrapper.Encrypt(ctx, testData)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}

	decrypted, err := p.wrapper.Decrypt(ctx, encrypted)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}

	if string(decrypted) != string(testData) {
		return fmt.Errorf("decrypted data does not match original")
	}
	return nil
}

// HealthCheck runs the round-trip test and records the outcome.
func (p *provider) HealthCheck(ctx context.Context) error {
	if p.wrapper == nil {
		return fmt.Errorf("KMS provider not properly initialized: wrapper is nil")
	}

	if err := p.Test(ctx); err != nil {
		p.lastHealthCheck = fmt.Errorf("KMS provider health check failed: %w", err)
		return p.lastHealthCheck
	}

	p.lastHealthCheck = nil
	return nil
}

// GetLastHealthCheckError returns the last health check error if any
func (p *provider) GetLastHealthCheckError() error {
	return p.lastHealthCheck
}

// validateAWSConfig validates AWS KMS configuration
func validateAWSConfig(cfg AWSConfig) error {
	if cfg.KeyID == "" {
		return fmt.Errorf("key ID (ARN) is required")
	}
	if cfg.Region == "" {
		return fmt.Errorf("region is required")
	}
	if cfg.Credentials != nil {
		hasAccess := cfg.Credentials.AccessKeyID != ""
		hasSecret := cfg.Credentials.SecretAccessKey != ""
		if hasAccess != hasSecret {
			return fmt.Errorf("both accessKeyId and secretAccessKey must be provided if using credentials")
		}
	} else {
		log.Info().Msg("AWS credentials not provided in config, assuming environment variables or default credentials")
	}
	return nil
}

// validateAzureConfig validates Azure Key Vault configuration
func validateAzureConfig(cfg AzureConfig) error {
	if cfg.KeyID == "" {
		return fmt.Errorf("key ID (URL) is required")
	}
	if !strings.HasPrefix(cfg.VaultAddress, "https://") || !strings.Contains(cfg.VaultAddress, ".vault.azure.net") {
		return fmt.Errorf("vault address must be a valid Azure Key Vault URL (e.g., https://myvault.vault.azure.net)")
	}
	if cfg.Credentials != nil {
		if cfg.Credentials.TenantID == "" || cfg.Credentials.ClientID == "" || cfg.Credentials.ClientSecret == "" {
			return fmt.Errorf("tenantId, clientId, and clientSecret are all required in credentials")
		}
	} else {
		log.Info().Msg("Azure credentials not provided, assuming alternative authentication method (e.g., Managed Identity)")
	}
	return nil
}

// validateGCPConfig validates GCP KMS configuration
func validateGCPConfig(cfg GCPConfig) error {
	if cfg.ResourceName == "" {
		return fmt.Errorf("resource name is required")
	}
	parts := strings.Split(cfg.ResourceName, "/")
	if len(parts) != 8 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keyRings" || parts[6] != "cryptoKeys" {
		return fmt.Errorf("invalid resource name format. Expected: projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}")
	}
	if parts[1] == "" || parts[3] == "" || parts[5] == "" || parts[7] == "" {
		return fmt.Errorf("project, location, keyRing, and cryptoKey components in resource name cannot be empty")
	}
	if cfg.Credentials != nil && cfg.Credentials.CredentialsJSON == "" {
		return fmt.Errorf("credentialsJson is required in credentials and cannot be empty")
	}
	if cfg.Credentials == nil {
		log.Info().Msg("GCP credentials not provided in config, assuming Application Default Credentials (ADC)")
	}
	return nil
}

// validateVaultConfig validates HashiCorp Vault configuration
func validateVaultConfig(cfg VaultConfig) error {
	if cfg.KeyID == "" {
		return fmt.Errorf("key ID (key name) is required")
	}
	if cfg.VaultAddress == "" {
		return fmt.Errorf("vault address is required")
	}
	if cfg.Credentials != nil && cfg.Credentials.Token == "" {
		return fmt.Errorf("token is required in credentials and cannot be empty")
	}
	if cfg.Credentials == nil {
		log.Info().Msg("Vault token not provided in config, assuming VAULT_TOKEN environment variable or other auth method")
	}
	return nil
}

// createAWSWrapper creates an AWS KMS wrapper
func createAWSWrapper(ctx context.Context, cfg AWSConfig) (wrapping.Wrapper, error) {
	wrapper := awskms.NewWrapper()

	configMap := map[string]string{
		"kms_key_id": cfg.KeyID,
		"region":     cfg.Region,
	}
	if cfg.Credentials != nil {
		if cfg.Credentials.AccessKeyID != "" {
			configMap["access_key"] = cfg.Credentials.AccessKeyID
		}
		if cfg.Credentials.SecretAccessKey != "" {
			configMap["secret_key"] = cfg.Credentials.SecretAccessKey
		}
		if cfg.Credentials.SessionToken != "" {
			configMap["session_token"] = cfg.Credentials.SessionToken
		}
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure AWS KMS wrapper: %w", err)
	}
	return wrapper, nil
}

// createAzureWrapper creates an Azure Key Vault wrapper
func createAzureWrapper(ctx context.Context, cfg AzureConfig) (wrapping.Wrapper, error) {
	wrapper := azurekeyvault.NewWrapper()

	// Example KeyID URL: https://myvault.vault.azure.net/keys/mykey/version
	keyName := cfg.KeyID
	keyVersion := ""
	parts := strings.Split(cfg.KeyID, "/")
	if len(parts) >= 5 && parts[3] == "keys" {
		keyName = parts[4]
		if len(parts) >= 6 {
			keyVersion = parts[5]
		}
	} else {
		log.Warn().Str("keyId", cfg.KeyID).Msg("Azure KeyID does not look like a standard Key Identifier URL, using the full value as key_name")
	}

	vaultName := strings.Split(strings.TrimPrefix(cfg.VaultAddress, "https://"), ".")[0]
	if vaultName == "" {
		return nil, fmt.Errorf("could not parse vault name from VaultAddress: %s", cfg.VaultAddress)
	}

	configMap := map[string]string{
		"key_name":   keyName,
		"vault_name": vaultName,
		"vault_url":  cfg.VaultAddress,
	}
	if keyVersion != "" {
		configMap["key_version"] = keyVersion
	}
	if cfg.Credentials != nil {
		configMap["tenant_id"] = cfg.Credentials.TenantID
		configMap["client_id"] = cfg.Credentials.ClientID
		configMap["client_secret"] = cfg.Credentials.ClientSecret
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure Azure Key Vault wrapper: %w", err)
	}
	return wrapper, nil
}

// createGCPWrapper creates a Google Cloud KMS wrapper
func createGCPWrapper(ctx context.Context, cfg GCPConfig) (wrapping.Wrapper, error) {
	wrapper := gcpckms.NewWrapper()

	parts := strings.Split(cfg.ResourceName, "/")
	configMap := map[string]string{
		"project":    parts[1],
		"region":     parts[3],
		"key_ring":   parts[5],
		"crypto_key": parts[7],
	}

	// The library reads credentials from a file path, so inline JSON goes
	// through a temporary file.
	if cfg.Credentials != nil {
		tempFile, err := os.CreateTemp("", "gcp-creds-*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary credentials file: %w", err)
		}
		defer func() {
			if err := os.Remove(tempFile.Name()); err != nil {
				log.Error().Err(err).Str("path", tempFile.Name()).Msg("Failed to remove temporary credentials file")
			}
		}()

		if _, err := tempFile.Write([]byte(cfg.Credentials.CredentialsJSON)); err != nil {
			_ = tempFile.Close()
			return nil, fmt.Errorf("failed to write credentials to temporary file: %w", err)
		}
		if err := tempFile.Close(); err != nil {
			return nil, fmt.Errorf("failed to close temporary credentials file: %w", err)
		}
		configMap["credentials"] = tempFile.Name()
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure GCP KMS wrapper: %w", err)
	}
	return wrapper, nil
}

// createVaultWrapper creates a HashiCorp Vault Transit wrapper
func createVaultWrapper(ctx context.Context, cfg VaultConfig) (wrapping.Wrapper, error) {
	wrapper := transit.NewWrapper()

	configMap := map[string]string{
		"address":  cfg.VaultAddress,
		"key_name": cfg.KeyID,
	}
	if cfg.VaultMount != "" {
		configMap["mount_path"] = cfg.VaultMount
	}
	if cfg.Credentials != nil {
		configMap["token"] = cfg.Credentials.Token
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure Vault Transit wrapper: %w", err)
	}
	return wrapper, nil
}

// createAeadWrapper creates a local AEAD wrapper from an inline key.
func createAeadWrapper(ctx context.Context, cfg AeadConfig) (wrapping.Wrapper, error) {
	if cfg.KeyBase64 == "" {
		return nil, fmt.Errorf("AEAD provider requires keyBase64")
	}

	decoded, err := base64.StdEncoding.DecodeString(cfg.KeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode keyBase64: %w", err)
	}
	if len(decoded) != keys.KeyLength {
		return nil, fmt.Errorf("decoded AEAD key must be %d bytes for AES-256-GCM, got %d", keys.KeyLength, len(decoded))
	}

	wrapper := kmsaead.NewWrapper()
	opts := []wrapping.Option{kmsaead.WithKey(decoded)}
	if cfg.KeyID != "" {
		opts = append(opts, wrapping.WithKeyId(cfg.KeyID))
	}
	if _, err := wrapper.SetConfig(ctx, opts...); err != nil {
		return nil, fmt.Errorf("failed to configure AEAD wrapper: %w", err)
	}
	return wrapper, nil
}

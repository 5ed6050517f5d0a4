package kms

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/root-sector/customer-data-protection-module-encryption/keys"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// ProvisionKeys resolves a list of key specs into raw key material. Each spec
// carries either inline base64 material or a KMS-wrapped blob; wrapped blobs
// are unwrapped through the provider exactly once, at startup. Returns the
// materials and the version flagged current.
func ProvisionKeys(ctx context.Context, provider Provider, specs []types.KeySpec) ([]keys.Material, uint32, error) {
	if len(specs) == 0 {
		return nil, 0, fmt.Errorf("at least one key spec is required")
	}

	var current uint32
	currentCount := 0
	materials := make([]keys.Material, 0, len(specs))

	for _, spec := range specs {
		if spec.Current {
			currentCount++
			current = spec.Version
		}

		material, err := resolveMaterial(ctx, provider, spec)
		if err != nil {
			return nil, 0, fmt.Errorf("key version %d: %w", spec.Version, err)
		}
		materials = append(materials, keys.Material{Version: spec.Version, Key: material})
	}

	if currentCount != 1 {
		return nil, 0, fmt.Errorf("exactly one key spec must be flagged current, got %d", currentCount)
	}

	log.Info().
		Int("keys", len(materials)).
		Uint32("current_version", current).
		Msg("Key material provisioned")
	return materials, current, nil
}

// BuildRegistry provisions the specs and constructs the key registry in one
// step. The registry enforces key length and version uniqueness.
func BuildRegistry(ctx context.Context, provider Provider, specs []types.KeySpec) (*keys.Registry, error) {
	materials, current, err := ProvisionKeys(ctx, provider, specs)
	if err != nil {
		return nil, err
	}
	return keys.NewRegistry(materials, current)
}

func resolveMaterial(ctx context.Context, provider Provider, spec types.KeySpec) ([]byte, error) {
	switch {
	case spec.Material != "" && spec.Wrapped != nil:
		return nil, fmt.Errorf("inline material and wrapped blob are mutually exclusive")
	case spec.Material != "":
		decoded, err := base64.StdEncoding.DecodeString(spec.Material)
		if err != nil {
			return nil, fmt.Errorf("failed to decode inline material: %w", err)
		}
		return decoded, nil
	case spec.Wrapped != nil:
		if provider == nil {
			return nil, fmt.Errorf("a KMS provider is required to unwrap key material")
		}
		decrypted, err := provider.GetWrapper().Decrypt(ctx, spec.Wrapped)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap key material: %w", err)
		}
		return decrypted, nil
	default:
		return nil, fmt.Errorf("key spec carries neither inline material nor a wrapped blob")
	}
}

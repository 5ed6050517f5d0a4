// Package keys holds the versioned key registry used by the cipher engine.
// The registry is populated once at startup and is read-only afterwards, so
// it requires no locking.
package keys

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// KeyLength is the required key size in bytes (AES-256).
const KeyLength = 32

var (
	// ErrInvalidKeyLength indicates key material that is not exactly 32 bytes.
	// Short keys are rejected at startup to prevent insecure deployments.
	ErrInvalidKeyLength = errors.New("key material must be exactly 32 bytes")

	// ErrKeyVersionNotFound indicates a payload references a key version the
	// registry does not hold. It fails the decrypt call, never silently.
	ErrKeyVersionNotFound = errors.New("key version not found")

	// ErrNoCurrentKey indicates the registry was built without exactly one
	// current key.
	ErrNoCurrentKey = errors.New("registry requires exactly one current key")
)

// Material is one versioned symmetric key.
type Material struct {
	Version uint32
	Key     []byte
}

// Registry resolves the current key for encryption and historical keys for
// decryption. Rotation is introducing a new current version at the next
// process start while retaining the old versions.
type Registry struct {
	current   uint32
	byVersion map[uint32]Material
}

// NewRegistry builds a registry from provisioned key material. Every key
// must be exactly 32 bytes and currentVersion must be present.
func NewRegistry(materials []Material, currentVersion uint32) (*Registry, error) {
	if len(materials) == 0 {
		return nil, fmt.Errorf("at least one key is required: %w", ErrNoCurrentKey)
	}

	byVersion := make(map[uint32]Material, len(materials))
	for _, m := range materials {
		if len(m.Key) != KeyLength {
			return nil, fmt.Errorf("key version %d: %w (got %d bytes)", m.Version, ErrInvalidKeyLength, len(m.Key))
		}
		if m.Version == 0 {
			return nil, fmt.Errorf("key version must be a positive integer")
		}
		if _, exists := byVersion[m.Version]; exists {
			return nil, fmt.Errorf("duplicate key version %d", m.Version)
		}
		byVersion[m.Version] = m
	}

	if _, ok := byVersion[currentVersion]; !ok {
		return nil, fmt.Errorf("current version %d: %w", currentVersion, ErrNoCurrentKey)
	}

	log.Debug().
		Uint32("currentVersion", currentVersion).
		Int("numVersions", len(byVersion)).
		Msg("Key registry initialized")

	return &Registry{
		current:   currentVersion,
		byVersion: byVersion,
	}, nil
}

// Current returns the key used for all new encryptions.
func (r *Registry) Current() Material {
	return r.byVersion[r.current]
}

// CurrentVersion returns the version tag of the current key.
func (r *Registry) CurrentVersion() uint32 {
	return r.current
}

// ByVersion resolves historical key material for decryption.
func (r *Registry) ByVersion(version uint32) (Material, error) {
	m, ok := r.byVersion[version]
	if !ok {
		return Material{}, fmt.Errorf("version %d: %w", version, ErrKeyVersionNotFound)
	}
	return m, nil
}

// Versions returns all known version tags, unordered.
func (r *Registry) Versions() []uint32 {
	versions := make([]uint32, 0, len(r.byVersion))
	for v := range r.byVersion {
		versions = append(versions, v)
	}
	return versions
}

// Package payload serializes encrypted field values to and from the single
// opaque string stored in place of the plaintext.
//
// The encoding is self-describing: a fixed marker plus the key version, so
// callers can distinguish already-encrypted values from plaintext without any
// external state. That property is what makes bulk migration idempotent and
// lets legacy plaintext rows pass through during migration windows.
//
// Wire format: ENC[v<version>:<b64 nonce>:<b64 ciphertext>:<b64 tag>]
package payload

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

const (
	prefix = "ENC[v"
	suffix = "]"
)

// Encode serializes a payload into its storable string form.
func Encode(p types.EncodedPayload) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(strconv.FormatUint(uint64(p.Version), 10))
	b.WriteByte(':')
	b.WriteString(base64.StdEncoding.EncodeToString(p.Nonce))
	b.WriteByte(':')
	b.WriteString(base64.StdEncoding.EncodeToString(p.Ciphertext))
	b.WriteByte(':')
	b.WriteString(base64.StdEncoding.EncodeToString(p.Tag))
	b.WriteString(suffix)
	return b.String()
}

// IsEncoded reports whether a stored value carries the payload marker. It is
// a cheap pre-check; Decode remains the authority on well-formedness.
func IsEncoded(s string) bool {
	return strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix)
}

// Decode parses a stored value. It is a total function: malformed input
// returns ok=false and no error, so callers treat it as plaintext still to
// be migrated.
func Decode(s string) (types.EncodedPayload, bool) {
	if !IsEncoded(s) {
		return types.EncodedPayload{}, false
	}

	body := strings.TrimSuffix(strings.TrimPrefix(s, prefix), suffix)
	parts := strings.Split(body, ":")
	if len(parts) != 4 {
		return types.EncodedPayload{}, false
	}

	version, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || version == 0 {
		return types.EncodedPayload{}, false
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(nonce) != types.NonceSize {
		return types.EncodedPayload{}, false
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(ciphertext) == 0 {
		return types.EncodedPayload{}, false
	}

	tag, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(tag) != types.TagSize {
		return types.EncodedPayload{}, false
	}

	return types.EncodedPayload{
		Version:    uint32(version),
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Tag:        tag,
	}, true
}

// Version extracts only the key version from an encoded value without
// decoding the body. Returns 0 when the value is not encoded.
func Version(s string) uint32 {
	p, ok := Decode(s)
	if !ok {
		return 0
	}
	return p.Version
}

// String implements a redacted representation for logging; ciphertext bytes
// never reach the logs.
func String(p types.EncodedPayload) string {
	return fmt.Sprintf("ENC[v%d:%dB]", p.Version, len(p.Ciphertext))
}

package payload

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := types.EncodedPayload{
		Version:    3,
		Nonce:      bytes.Repeat([]byte{0x11}, types.NonceSize),
		Ciphertext: []byte("opaque-bytes-here"),
		Tag:        bytes.Repeat([]byte{0x7f}, types.TagSize),
	}

	encoded := Encode(in)
	if !strings.HasPrefix(encoded, "ENC[v3:") {
		t.Fatalf("encoded value missing marker: %q", encoded)
	}
	if !IsEncoded(encoded) {
		t.Fatal("IsEncoded should accept encoder output")
	}

	out, ok := Decode(encoded)
	if !ok {
		t.Fatal("Decode rejected encoder output")
	}
	if out.Version != in.Version {
		t.Errorf("version = %d, want %d", out.Version, in.Version)
	}
	if !bytes.Equal(out.Nonce, in.Nonce) || !bytes.Equal(out.Ciphertext, in.Ciphertext) || !bytes.Equal(out.Tag, in.Tag) {
		t.Error("decoded payload differs from input")
	}
}

func TestDecodeIsTotal(t *testing.T) {
	b64 := func(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
	nonce := b64(bytes.Repeat([]byte{0x11}, types.NonceSize))
	tag := b64(bytes.Repeat([]byte{0x22}, types.TagSize))

	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"plaintext", "+15551234567"},
		{"plaintext email", "user@example.com"},
		{"marker only", "ENC[v"},
		{"missing suffix", "ENC[v1:" + nonce + ":Y3Q=:" + tag},
		{"missing parts", "ENC[v1:" + nonce + "]"},
		{"too many parts", "ENC[v1:" + nonce + ":Y3Q=:" + tag + ":extra]"},
		{"bad version", "ENC[vX:" + nonce + ":Y3Q=:" + tag + "]"},
		{"zero version", "ENC[v0:" + nonce + ":Y3Q=:" + tag + "]"},
		{"bad nonce base64", "ENC[v1:!!!:Y3Q=:" + tag + "]"},
		{"short nonce", "ENC[v1:" + b64([]byte("short")) + ":Y3Q=:" + tag + "]"},
		{"empty ciphertext", "ENC[v1:" + nonce + "::" + tag + "]"},
		{"bad tag base64", "ENC[v1:" + nonce + ":Y3Q=:???]"},
		{"short tag", "ENC[v1:" + nonce + ":Y3Q=:" + b64([]byte("short")) + "]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Decode(tt.input); ok {
				t.Errorf("Decode(%q) accepted malformed input", tt.input)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	encoded := Encode(types.EncodedPayload{
		Version:    7,
		Nonce:      bytes.Repeat([]byte{0x01}, types.NonceSize),
		Ciphertext: []byte("ct"),
		Tag:        bytes.Repeat([]byte{0x02}, types.TagSize),
	})
	if got := Version(encoded); got != 7 {
		t.Errorf("Version = %d, want 7", got)
	}
	if got := Version("plaintext"); got != 0 {
		t.Errorf("Version of plaintext = %d, want 0", got)
	}
}

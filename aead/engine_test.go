package aead

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/root-sector/customer-data-protection-module-encryption/keys"
	"github.com/root-sector/customer-data-protection-module-encryption/payload"
)

func newTestEngine(t *testing.T, current uint32, versions ...uint32) *Engine {
	t.Helper()
	materials := make([]keys.Material, 0, len(versions))
	for _, v := range versions {
		materials = append(materials, keys.Material{
			Version: v,
			Key:     bytes.Repeat([]byte{byte(v)}, keys.KeyLength),
		})
	}
	reg, err := keys.NewRegistry(materials, current)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	engine, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func TestRoundTrip(t *testing.T) {
	engine := newTestEngine(t, 1, 1)

	tests := []string{
		"+15551234567",
		"user@example.com",
		"a",
		strings.Repeat("x", 1000),
		"unicode: héllo wörld ✓",
	}

	for _, plaintext := range tests {
		encrypted, err := engine.EncryptString(plaintext)
		if err != nil {
			t.Fatalf("EncryptString(%q): %v", plaintext, err)
		}
		if encrypted == plaintext {
			t.Fatalf("ciphertext equals plaintext for %q", plaintext)
		}
		if !payload.IsEncoded(encrypted) {
			t.Fatalf("encrypted value is not a valid encoded payload: %q", encrypted)
		}

		decrypted, err := engine.DecryptString(encrypted)
		if err != nil {
			t.Fatalf("DecryptString: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip = %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEmptyPassThrough(t *testing.T) {
	engine := newTestEngine(t, 1, 1)

	encrypted, err := engine.EncryptString("")
	if err != nil {
		t.Fatalf("EncryptString(\"\"): %v", err)
	}
	if encrypted != "" {
		t.Errorf("EncryptString(\"\") = %q, want \"\"", encrypted)
	}

	decrypted, err := engine.DecryptString("")
	if err != nil {
		t.Fatalf("DecryptString(\"\"): %v", err)
	}
	if decrypted != "" {
		t.Errorf("DecryptString(\"\") = %q, want \"\"", decrypted)
	}
}

func TestPlaintextPassThroughOnDecrypt(t *testing.T) {
	engine := newTestEngine(t, 1, 1)

	// Legacy unencrypted rows must come back unchanged during migration windows.
	for _, v := range []string{"+15551234567", "not encrypted", "ENC[garbage"} {
		got, err := engine.DecryptString(v)
		if err != nil {
			t.Fatalf("DecryptString(%q): %v", v, err)
		}
		if got != v {
			t.Errorf("DecryptString(%q) = %q, want unchanged", v, got)
		}
	}
}

func TestTamperDetection(t *testing.T) {
	engine := newTestEngine(t, 1, 1)

	encrypted, err := engine.EncryptString("+15551234567")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	p, ok := payload.Decode(encrypted)
	if !ok {
		t.Fatal("Decode rejected engine output")
	}

	flip := func(b []byte, i int) []byte {
		out := make([]byte, len(b))
		copy(out, b)
		out[i] ^= 0x01
		return out
	}

	// Flip one bit in every position of ciphertext and tag.
	for i := range p.Ciphertext {
		tampered := p
		tampered.Ciphertext = flip(p.Ciphertext, i)
		if _, err := engine.DecryptString(payload.Encode(tampered)); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("ciphertext bit %d: err = %v, want ErrAuthenticationFailed", i, err)
		}
	}
	for i := range p.Tag {
		tampered := p
		tampered.Tag = flip(p.Tag, i)
		if _, err := engine.DecryptString(payload.Encode(tampered)); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("tag bit %d: err = %v, want ErrAuthenticationFailed", i, err)
		}
	}

	// Rewriting the version header must also fail authentication, since the
	// version is bound into the AAD.
	tampered := p
	tampered.Version = 2
	reg, _ := keys.NewRegistry([]keys.Material{
		{Version: 1, Key: bytes.Repeat([]byte{1}, keys.KeyLength)},
		{Version: 2, Key: bytes.Repeat([]byte{1}, keys.KeyLength)},
	}, 2)
	sameKeyEngine, _ := New(reg)
	if _, err := sameKeyEngine.DecryptString(payload.Encode(tampered)); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("version rewrite: err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestKeyRotation(t *testing.T) {
	v1Engine := newTestEngine(t, 1, 1)
	encryptedV1, err := v1Engine.EncryptString("rotate-me")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}

	// Version 2 becomes current; version 1 is retained for decryption.
	v2Engine := newTestEngine(t, 2, 1, 2)

	decrypted, err := v2Engine.DecryptString(encryptedV1)
	if err != nil {
		t.Fatalf("DecryptString of v1 payload after rotation: %v", err)
	}
	if decrypted != "rotate-me" {
		t.Errorf("decrypted = %q, want %q", decrypted, "rotate-me")
	}

	encryptedV2, err := v2Engine.EncryptString("new-data")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if got := payload.Version(encryptedV2); got != 2 {
		t.Errorf("new encryptions use version %d, want 2", got)
	}
}

func TestUnknownVersionFails(t *testing.T) {
	v2Engine := newTestEngine(t, 2, 1, 2)
	encrypted, err := v2Engine.EncryptString("secret")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}

	// An engine provisioned without version 2 must fail the decrypt call,
	// never pass the ciphertext through.
	v1Only := newTestEngine(t, 1, 1)
	_, err = v1Only.DecryptString(encrypted)
	if !errors.Is(err, keys.ErrKeyVersionNotFound) {
		t.Errorf("err = %v, want ErrKeyVersionNotFound", err)
	}
}

func TestNonceUniqueness(t *testing.T) {
	engine := newTestEngine(t, 1, 1)

	seen := make(map[string]bool)
	for i := 0; i < 256; i++ {
		encrypted, err := engine.EncryptString("same plaintext")
		if err != nil {
			t.Fatalf("EncryptString: %v", err)
		}
		p, ok := payload.Decode(encrypted)
		if !ok {
			t.Fatal("Decode rejected engine output")
		}
		nonce := base64.StdEncoding.EncodeToString(p.Nonce)
		if seen[nonce] {
			t.Fatal("nonce reused across encryptions")
		}
		seen[nonce] = true
	}
}

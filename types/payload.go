package types

// Payload sizes fixed by AES-256-GCM.
const (
	NonceSize = 12
	TagSize   = 16
)

// EncodedPayload is the decoded form of a stored ciphertext: the key version
// it was encrypted under, the per-call nonce, the ciphertext and the GCM
// authentication tag. A payload is immutable once written; changing the
// plaintext means a full re-encryption with a fresh nonce.
type EncodedPayload struct {
	Version    uint32 `json:"version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

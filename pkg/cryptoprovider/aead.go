package cryptoprovider

import (
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealXChaCha20Poly1305 encrypts plaintext under key with a freshly
// generated 24-byte nonce, prepending the nonce to the ciphertext the
// way the onion layer format expects it (nonce || ciphertext || tag).
func SealXChaCha20Poly1305(key []byte, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := aead.Seal(nonce, nonce, plaintext, aad)
	return out, nil
}

// OpenXChaCha20Poly1305 reverses SealXChaCha20Poly1305.
func OpenXChaCha20Poly1305(key []byte, sealed, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errConversion("ciphertext shorter than nonce")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, aad)
}

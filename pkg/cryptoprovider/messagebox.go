package cryptoprovider

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"

	"golang.org/x/crypto/curve25519"
)

// messageEnvelope is the plaintext sealed inside a 1:1 or group
// message's ciphertext: the sender's identity key (so the receiver can
// both verify authorship and recover the sender's session id) plus a
// detached signature over the content and the content itself.
type messageEnvelope struct {
	SenderEd25519Pub []byte `json:"sender_pub"`
	Signature        []byte `json:"sig"`
	Content          []byte `json:"content"`
}

// EncryptMessageTo encrypts content for a recipient's static X25519
// public key, signing it with the sender's Ed25519 identity key so the
// recipient can authenticate the sender without a separate channel.
func EncryptMessageTo(senderEd25519Priv ed25519.PrivateKey, recipientX25519Pub []byte, content []byte) ([]byte, error) {
	var ephSec [32]byte
	if _, err := rand.Read(ephSec[:]); err != nil {
		return nil, err
	}
	clamp(ephSec[:])
	ephPub, err := curve25519.X25519(ephSec[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	env := messageEnvelope{
		SenderEd25519Pub: []byte(senderEd25519Priv.Public().(ed25519.PublicKey)),
		Signature:        Sign(senderEd25519Priv, content),
		Content:          content,
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	shared, err := curve25519.X25519(ephSec[:], recipientX25519Pub)
	if err != nil {
		return nil, err
	}
	keys, err := DeriveHopKeys(shared, "swarmclient-message")
	if err != nil {
		return nil, err
	}
	sealed, err := SealXChaCha20Poly1305(keys.EncKey[:], envBytes, nil)
	if err != nil {
		return nil, err
	}

	layer := OnionLayer{EphemeralPub: ephPub, Ciphertext: sealed}
	return json.Marshal(layer)
}

// DecryptMessageFrom decrypts a message sealed by EncryptMessageTo
// using the recipient's static X25519 private key. It returns the
// sender's Ed25519 public key (callers derive a SessionID from it) and
// the verified content. An error is returned if the embedded signature
// does not verify.
func DecryptMessageFrom(recipientX25519Priv []byte, wire []byte) (senderEd25519Pub ed25519.PublicKey, content []byte, err error) {
	var layer OnionLayer
	if err = json.Unmarshal(wire, &layer); err != nil {
		return nil, nil, err
	}
	shared, err := curve25519.X25519(recipientX25519Priv, layer.EphemeralPub)
	if err != nil {
		return nil, nil, err
	}
	keys, err := DeriveHopKeys(shared, "swarmclient-message")
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := OpenXChaCha20Poly1305(keys.EncKey[:], layer.Ciphertext, nil)
	if err != nil {
		return nil, nil, err
	}
	var env messageEnvelope
	if err = json.Unmarshal(plaintext, &env); err != nil {
		return nil, nil, err
	}
	if !Verify(env.SenderEd25519Pub, env.Content, env.Signature) {
		return nil, nil, errConversion("message signature verification failed")
	}
	return env.SenderEd25519Pub, env.Content, nil
}

// Package identity derives a local account's keys and session id from
// a 16-byte mnemonic seed, and offers the signing/decryption surface
// the rest of the client uses instead of touching cryptoprovider keys
// directly.
package identity

import (
	"crypto/ed25519"
	"crypto/sha512"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/cryptoprovider"
)

// SeedSize is the length of the opaque mnemonic seed an Identity is
// created from.
const SeedSize = 16

// Identity holds one account's Ed25519 identity keypair, its derived
// Curve25519 counterpart (used for ECDH in onion/message crypto) and
// its individual SessionID. It is constructed once from a mnemonic
// seed and persisted opaquely by callers — Identity itself does not
// touch storage.
type Identity struct {
	ed25519Priv ed25519.PrivateKey
	ed25519Pub  ed25519.PublicKey
	x25519Priv  []byte
	x25519Pub   []byte
	sessionID   common.SessionID
}

// FromSeed deterministically derives an Identity from a 16-byte
// mnemonic seed: the seed is expanded to a 32-byte Ed25519 seed via
// SHA-512 (mirroring the teacher's hash-then-clamp pattern used
// elsewhere for seed expansion), then the Curve25519 keypair and
// session id are derived from that Ed25519 identity the same way a
// remote peer's session id is derived from their Ed25519 pubkey, so
// a single conversion function is the one source of truth for both.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != SeedSize {
		return nil, cryptoprovider.ErrInvalidSeedSize(SeedSize, len(seed))
	}
	expanded := sha512.Sum512(seed)
	ed25519Priv := ed25519.NewKeyFromSeed(expanded[:32])
	return FromEd25519Seed(ed25519Priv)
}

// FromEd25519Seed builds an Identity directly from an already-derived
// Ed25519 private key, skipping mnemonic expansion. Used by tests and
// by key-import flows that already hold a raw identity key.
func FromEd25519Seed(priv ed25519.PrivateKey) (*Identity, error) {
	pub := priv.Public().(ed25519.PublicKey)

	x25519Pub, err := cryptoprovider.Ed25519PublicKeyToX25519(pub)
	if err != nil {
		return nil, err
	}
	x25519Priv, err := cryptoprovider.Ed25519PrivateKeyToX25519(priv)
	if err != nil {
		return nil, err
	}

	var key [32]byte
	copy(key[:], x25519Pub)
	sessionID := common.NewSessionID(common.PrefixIndividual, key)

	return &Identity{
		ed25519Priv: priv,
		ed25519Pub:  pub,
		x25519Priv:  x25519Priv,
		x25519Pub:   x25519Pub,
		sessionID:   sessionID,
	}, nil
}

// SessionID returns the account's public individual SessionID.
func (id *Identity) SessionID() common.SessionID { return id.sessionID }

// Ed25519PublicKey returns the raw Ed25519 identity public key.
func (id *Identity) Ed25519PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(id.ed25519Pub))
	copy(out, id.ed25519Pub)
	return out
}

// X25519PublicKey returns the Curve25519 public key remote peers use
// to encrypt 1:1 messages to this account.
func (id *Identity) X25519PublicKey() []byte {
	out := make([]byte, len(id.x25519Pub))
	copy(out, id.x25519Pub)
	return out
}

// Sign produces a detached Ed25519 signature over msg, used both for
// message authorship and for the signed-string RPC authentication
// scheme described in spec.md §6.
func (id *Identity) Sign(msg []byte) []byte {
	return cryptoprovider.Sign(id.ed25519Priv, msg)
}

// EncryptTo encrypts content for a recipient's X25519 public key,
// signed with this identity's Ed25519 key.
func (id *Identity) EncryptTo(recipientX25519Pub []byte, content []byte) ([]byte, error) {
	return cryptoprovider.EncryptMessageTo(id.ed25519Priv, recipientX25519Pub, content)
}

// Decrypt decrypts a message addressed to this identity, returning the
// sender's individual SessionID (derived from the embedded and
// signature-verified Ed25519 sender key) and the plaintext content.
func (id *Identity) Decrypt(wire []byte) (sender common.SessionID, content []byte, err error) {
	senderEd25519Pub, plaintext, err := cryptoprovider.DecryptMessageFrom(id.x25519Priv, wire)
	if err != nil {
		return common.SessionID{}, nil, err
	}
	senderX25519Pub, err := cryptoprovider.Ed25519PublicKeyToX25519(senderEd25519Pub)
	if err != nil {
		return common.SessionID{}, nil, err
	}
	var key [32]byte
	copy(key[:], senderX25519Pub)
	return common.NewSessionID(common.PrefixIndividual, key), plaintext, nil
}

package cryptoprovider

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// BlindedIDs is the pair of unlinkable, per-server addresses derived
// from an account's session id and a community server's public key.
// Community servers only ever see the blinded pair, never the real
// session id, and the pair is deterministic so the same (session id,
// server key) always regenerates identically (spec.md §8).
type BlindedIDs struct {
	Primary   [32]byte
	Secondary [32]byte
}

// DeriveBlindedIDs computes the blinded id pair for a community server
// identified by serverPubKey, for the account identified by
// sessionIDBytes (its raw 32-byte public key).
func DeriveBlindedIDs(sessionIDBytes, serverPubKey []byte) (BlindedIDs, error) {
	primary, err := blindScalarMultBase(sessionIDBytes, serverPubKey, "swarmclient-blind-primary")
	if err != nil {
		return BlindedIDs{}, err
	}
	secondary, err := blindScalarMultBase(sessionIDBytes, serverPubKey, "swarmclient-blind-secondary")
	if err != nil {
		return BlindedIDs{}, err
	}
	var out BlindedIDs
	copy(out.Primary[:], primary)
	copy(out.Secondary[:], secondary)
	return out, nil
}

func blindScalarMultBase(ikm, salt []byte, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, []byte(info))
	scalar := make([]byte, 32)
	if _, err := io.ReadFull(reader, scalar); err != nil {
		return nil, err
	}
	clamp(scalar)
	return curve25519.X25519(scalar, curve25519.Basepoint)
}

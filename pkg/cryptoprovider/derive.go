package cryptoprovider

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeys holds the three keys derived from a single ECDH shared
// secret: an AEAD key, an HMAC key for explicit authentication where
// the AEAD tag alone isn't enough (e.g. routing blob re-verification
// on relay), and a blinding factor used to re-randomize the ephemeral
// key for the next onion hop. Mirrors the teacher's DeriveKeys.
type DerivedKeys struct {
	EncKey         [32]byte
	HMACKey        [32]byte
	BlindingFactor [32]byte
}

// DeriveHopKeys expands an ECDH shared secret into DerivedKeys using
// HKDF-SHA256 with a per-protocol-version salt, identical in shape to
// the teacher's hop-key derivation.
func DeriveHopKeys(sharedSecret []byte, salt string) (DerivedKeys, error) {
	reader := hkdf.New(sha256.New, sharedSecret, []byte(salt), []byte("swarmclient-v1-hop-keys"))
	buf := make([]byte, 96)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return DerivedKeys{}, err
	}
	var out DerivedKeys
	copy(out.EncKey[:], buf[0:32])
	copy(out.HMACKey[:], buf[32:64])
	copy(out.BlindingFactor[:], buf[64:96])
	return out, nil
}

package cryptoprovider

import (
	"crypto/ed25519"
	"crypto/sha512"
	"math/big"
)

// fieldPrime is 2^255 - 19, the order of the field both Ed25519 and
// Curve25519 points live in.
var fieldPrime = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

// Ed25519PublicKeyToX25519 performs the standard birational map from a
// packed Ed25519 (twisted Edwards) public key to its Curve25519
// (Montgomery) counterpart: u = (1+y) / (1-y) mod p, where y is the
// Edwards y-coordinate recovered from the encoded point (the encoding
// is y little-endian with the sign of x folded into the top bit, which
// we discard — it is not needed to compute u). This is the same
// conversion libsodium's crypto_sign_ed25519_pk_to_curve25519 performs,
// and it is deterministic: the same Ed25519 key always yields the same
// Curve25519 key, satisfying spec.md's key-generation testable property.
func Ed25519PublicKeyToX25519(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, errInvalidKeySize("ed25519 public key", ed25519.PublicKeySize, len(pub))
	}

	yBytes := make([]byte, 32)
	copy(yBytes, pub)
	yBytes[31] &= 0x7f // clear the sign bit, it encodes x's parity, not part of y

	y := leBytesToBigInt(yBytes)

	one := big.NewInt(1)
	numerator := new(big.Int).Add(one, y)
	numerator.Mod(numerator, fieldPrime)

	denominator := new(big.Int).Sub(one, y)
	denominator.Mod(denominator, fieldPrime)

	denomInv := new(big.Int).ModInverse(denominator, fieldPrime)
	if denomInv == nil {
		return nil, errConversion("ed25519 public key is not invertible on the curve")
	}

	u := new(big.Int).Mul(numerator, denomInv)
	u.Mod(u, fieldPrime)

	return bigIntToLEBytes(u, 32), nil
}

// Ed25519PrivateKeyToX25519 derives the Curve25519 private scalar from
// an Ed25519 private key the standard way: hash the 32-byte seed with
// SHA-512 and clamp the first 32 bytes of the digest.
func Ed25519PrivateKeyToX25519(priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errInvalidKeySize("ed25519 private key", ed25519.PrivateKeySize, len(priv))
	}
	seed := priv.Seed()
	digest := sha512.Sum512(seed)
	scalar := digest[:32]
	clamp(scalar)
	return scalar, nil
}

func clamp(scalar []byte) {
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
}

func leBytesToBigInt(b []byte) *big.Int {
	rev := make([]byte, len(b))
	for i, v := range b {
		rev[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(rev)
}

func bigIntToLEBytes(n *big.Int, size int) []byte {
	be := n.FillBytes(make([]byte, size))
	out := make([]byte, size)
	for i, v := range be {
		out[size-1-i] = v
	}
	return out
}

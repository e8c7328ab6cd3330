package cryptoprovider

import (
	"crypto/rand"
	"encoding/json"

	"golang.org/x/crypto/curve25519"
)

// OnionLayer is the wire shape of one layer of a layered-encrypted
// onion request: the ephemeral public key the recipient needs to
// recompute the shared secret, plus an XChaCha20-Poly1305 sealed body.
// The same ephemeral key is reused at every layer (each hop's shared
// secret differs because each hop's static key differs), which is
// also what lets the client decrypt the final response using the same
// ephemeral keypair it built the request with.
type OnionLayer struct {
	EphemeralPub []byte `json:"e"`
	Ciphertext   []byte `json:"c"`
}

// hopBody is the plaintext wrapped inside one non-final onion layer:
// routing metadata for the next hop plus the still-encrypted body to
// forward to it.
type hopBody struct {
	NextHost     string `json:"next_host"`
	NextPort     uint16 `json:"next_port"`
	NextEd25519  []byte `json:"next_ed25519"`
	NextX25519   []byte `json:"next_x25519"`
	Body         []byte `json:"body"`
}

// finalBody is the plaintext wrapped inside the innermost layer,
// delivered to the final destination (a service node or, for
// onion-proxied HTTP, a community server).
type finalBody struct {
	Payload []byte `json:"payload"`
}

// OnionHop is one step of a path: the destination-shaped address plus
// its X25519 public key (defaulting to the Ed25519 key converted to
// Curve25519, per spec.md §4.1, is the caller's responsibility before
// calling BuildOnionRequest).
type OnionHop struct {
	Host         string
	Port         uint16
	Ed25519PubKey []byte
	X25519PubKey  []byte
}

// BuildOnionRequest layers payload through path (outermost-first
// order: path[0] is the entry hop) ending at destination. It returns
// the wire bytes to POST to the entry hop, plus the ephemeral keypair
// needed to decrypt the eventual response.
func BuildOnionRequest(path []OnionHop, destination OnionHop, payload []byte) (wire []byte, ephPub, ephSec [32]byte, err error) {
	if _, err = rand.Read(ephSec[:]); err != nil {
		return nil, ephPub, ephSec, err
	}
	clamp(ephSec[:])
	pub, err := curve25519.X25519(ephSec[:], curve25519.Basepoint)
	if err != nil {
		return nil, ephPub, ephSec, err
	}
	copy(ephPub[:], pub)

	// Innermost layer: addressed to the final destination.
	fb := finalBody{Payload: payload}
	fbBytes, err := json.Marshal(fb)
	if err != nil {
		return nil, ephPub, ephSec, err
	}
	body, err := sealLayer(ephSec[:], ephPub[:], destination.X25519PubKey, fbBytes)
	if err != nil {
		return nil, ephPub, ephSec, err
	}

	// Wrap outward through the path, innermost hop (closest to
	// destination) first, entry hop last, so the entry hop's wrapper
	// ends up as the outermost (transmitted) layer.
	next := destination
	for i := len(path) - 1; i >= 0; i-- {
		hop := path[i]
		hb := hopBody{
			NextHost:    next.Host,
			NextPort:    next.Port,
			NextEd25519: next.Ed25519PubKey,
			NextX25519:  next.X25519PubKey,
			Body:        body,
		}
		hbBytes, merr := json.Marshal(hb)
		if merr != nil {
			return nil, ephPub, ephSec, merr
		}
		body, err = sealLayer(ephSec[:], ephPub[:], hop.X25519PubKey, hbBytes)
		if err != nil {
			return nil, ephPub, ephSec, err
		}
		next = hop
	}

	return body, ephPub, ephSec, nil
}

func sealLayer(ephSec, ephPub, recipientX25519 []byte, plaintext []byte) ([]byte, error) {
	shared, err := curve25519.X25519(ephSec, recipientX25519)
	if err != nil {
		return nil, err
	}
	keys, err := DeriveHopKeys(shared, "swarmclient-onion")
	if err != nil {
		return nil, err
	}
	sealed, err := SealXChaCha20Poly1305(keys.EncKey[:], plaintext, nil)
	if err != nil {
		return nil, err
	}
	layer := OnionLayer{EphemeralPub: append([]byte(nil), ephPub...), Ciphertext: sealed}
	return json.Marshal(layer)
}

// OpenOnionLayer decrypts one layer using the recipient's static
// X25519 private key, returning the plaintext it wraps (either a
// hopBody or a finalBody, caller-distinguished).
func OpenOnionLayer(wire []byte, recipientX25519Priv []byte) ([]byte, error) {
	var layer OnionLayer
	if err := json.Unmarshal(wire, &layer); err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(recipientX25519Priv, layer.EphemeralPub)
	if err != nil {
		return nil, err
	}
	keys, err := DeriveHopKeys(shared, "swarmclient-onion")
	if err != nil {
		return nil, err
	}
	return OpenXChaCha20Poly1305(keys.EncKey[:], layer.Ciphertext, nil)
}

// DecodeHopBody unmarshals a decrypted non-final layer.
func DecodeHopBody(plaintext []byte) (host string, port uint16, ed25519Pub, x25519Pub, body []byte, err error) {
	var hb hopBody
	if err = json.Unmarshal(plaintext, &hb); err != nil {
		return "", 0, nil, nil, nil, err
	}
	return hb.NextHost, hb.NextPort, hb.NextEd25519, hb.NextX25519, hb.Body, nil
}

// DecodeFinalBody unmarshals the destination's decrypted layer.
func DecodeFinalBody(plaintext []byte) ([]byte, error) {
	var fb finalBody
	if err := json.Unmarshal(plaintext, &fb); err != nil {
		return nil, err
	}
	return fb.Payload, nil
}

// DecryptOnionResponse decrypts the final destination's reply using
// the same ephemeral keypair the request was built with and the
// destination's static X25519 public key.
func DecryptOnionResponse(cipher []byte, destX25519Pub []byte, ephPub, ephSec [32]byte) ([]byte, error) {
	shared, err := curve25519.X25519(ephSec[:], destX25519Pub)
	if err != nil {
		return nil, err
	}
	keys, err := DeriveHopKeys(shared, "swarmclient-onion-response")
	if err != nil {
		return nil, err
	}
	return OpenXChaCha20Poly1305(keys.EncKey[:], cipher, nil)
}

// SealOnionResponse is the destination-side counterpart used only by
// in-process swarm mocks/tests to produce a response BuildOnionRequest's
// caller can decrypt, without depending on a live service node.
func SealOnionResponse(plaintext []byte, destX25519Priv []byte, ephPub [32]byte) ([]byte, error) {
	shared, err := curve25519.X25519(destX25519Priv, ephPub[:])
	if err != nil {
		return nil, err
	}
	keys, err := DeriveHopKeys(shared, "swarmclient-onion-response")
	if err != nil {
		return nil, err
	}
	return SealXChaCha20Poly1305(keys.EncKey[:], plaintext, nil)
}

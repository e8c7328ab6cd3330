package common

import (
	"crypto/ed25519"
	"fmt"
)

// ServiceNode is a storage-network peer: a public IPv4 address, its
// storage port, and its two public keys. Equality is by keys, not
// address, so a node that changes IP is still recognized.
type ServiceNode struct {
	IP           PublicIPv4
	StoragePort  uint16
	Ed25519PubKey ed25519.PublicKey // 32 bytes
	X25519PubKey  []byte            // 32 bytes
}

func (n ServiceNode) Equal(o ServiceNode) bool {
	return bytesEqual(n.Ed25519PubKey, o.Ed25519PubKey) && bytesEqual(n.X25519PubKey, o.X25519PubKey)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (n ServiceNode) Validate() error {
	if len(n.Ed25519PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("common: service node ed25519 key must be %d bytes", ed25519.PublicKeySize)
	}
	if len(n.X25519PubKey) != 0 && len(n.X25519PubKey) != 32 {
		return fmt.Errorf("common: service node x25519 key must be 32 bytes")
	}
	return nil
}

// NodeAddress is an onion destination: a socket address plus the
// ed25519 key (always known) and an optional x25519 key (defaults, at
// request-build time, to the ed25519 key converted to curve25519).
type NodeAddress struct {
	Host          string
	Port          uint16
	Ed25519PubKey ed25519.PublicKey
	X25519PubKey  []byte // may be nil; caller derives a default
}

func (a NodeAddress) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func (a NodeAddress) Equal(o NodeAddress) bool {
	return a.Host == o.Host && a.Port == o.Port && bytesEqual(a.Ed25519PubKey, o.Ed25519PubKey)
}

// NodeAddressFromServiceNode builds the onion-destination view of a
// service node.
func NodeAddressFromServiceNode(n ServiceNode) NodeAddress {
	return NodeAddress{
		Host:          n.IP.String(),
		Port:          n.StoragePort,
		Ed25519PubKey: n.Ed25519PubKey,
		X25519PubKey:  n.X25519PubKey,
	}
}

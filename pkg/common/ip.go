package common

import (
	"fmt"
	"net"
)

// PublicIPv4 is an IPv4 address known not to be private, broadcast,
// documentation, link-local or multicast. Service nodes (and the
// destinations built from them) are rejected at construction time if
// their advertised address falls in any of these ranges, matching the
// original client's ip.rs rejection list exactly.
type PublicIPv4 struct {
	addr net.IP
}

// NewPublicIPv4 parses s as an IPv4 address and validates it is public.
func NewPublicIPv4(s string) (PublicIPv4, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return PublicIPv4{}, fmt.Errorf("common: invalid IP address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return PublicIPv4{}, fmt.Errorf("common: %q is not an IPv4 address", s)
	}
	if !isPublicIPv4(ip4) {
		return PublicIPv4{}, fmt.Errorf("common: %q is not a public IPv4 address", s)
	}
	return PublicIPv4{addr: ip4}, nil
}

func isPublicIPv4(ip net.IP) bool {
	switch {
	case ip.IsPrivate():
		return false
	case ip.Equal(net.IPv4bcast):
		return false
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return false
	case ip.IsMulticast():
		return false
	case isDocumentationIPv4(ip):
		return false
	default:
		return true
	}
}

// isDocumentationIPv4 covers the TEST-NET ranges reserved by RFC 5737:
// 192.0.2.0/24, 198.51.100.0/24, 203.0.113.0/24.
func isDocumentationIPv4(ip net.IP) bool {
	for _, cidr := range []string{"192.0.2.0/24", "198.51.100.0/24", "203.0.113.0/24"} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil && block.Contains(ip) {
			return true
		}
	}
	return false
}

func (p PublicIPv4) String() string { return p.addr.String() }

func (p PublicIPv4) IP() net.IP { return p.addr }

func (p PublicIPv4) Equal(o PublicIPv4) bool { return p.addr.Equal(o.addr) }

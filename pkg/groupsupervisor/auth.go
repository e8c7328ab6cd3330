package groupsupervisor

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/rpc"
	"github.com/montana2ab/swarmclient/pkg/swarmerr"
)

// subaccountCredentialSize is the 36-byte subaccount token plus the
// 64-byte admin signature over it, matching spec.md §4.7's "100 bytes
// of subaccount credential".
const (
	subaccountTokenSize = 36
	subaccountSigSize   = 64
	subaccountCredentialSize = subaccountTokenSize + subaccountSigSize
)

// Auth signs namespace-worker retrieve and store calls for one group's
// namespaces, in whichever of the two variants spec.md §4.7 describes.
// It satisfies nsworker.Signer directly.
type Auth interface {
	SignRetrieve(ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519, subaccount, subaccountSig string)
	SignStore(ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519, subaccount, subaccountSig string)
}

// AdminAuth signs directly with the group's own Ed25519 key, available
// only to a device that holds the group's secret key.
type AdminAuth struct {
	groupIdentity *identity.Identity
}

// NewAdminAuth builds an AdminAuth from the group's Ed25519 private
// key (the group's "sec_key").
func NewAdminAuth(groupSecKey ed25519.PrivateKey) (*AdminAuth, error) {
	id, err := identity.FromEd25519Seed(groupSecKey)
	if err != nil {
		return nil, err
	}
	return &AdminAuth{groupIdentity: id}, nil
}

func (a *AdminAuth) SignRetrieve(ns namespace.Namespace, ts int64) (signature, pubKeyEd25519, subaccount, subaccountSig string) {
	sig, pub := rpc.SignRetrieve(a.groupIdentity, ns, ts)
	return sig, pub, "", ""
}

func (a *AdminAuth) SignStore(ns namespace.Namespace, ts int64) (signature, pubKeyEd25519, subaccount, subaccountSig string) {
	sig, pub := rpc.SignStore(a.groupIdentity, ns, ts)
	return sig, pub, "", ""
}

// MemberAuth signs with the member's own account identity, presenting
// an admin-issued subaccount credential (a 36-byte subaccount token
// plus the admin's 64-byte signature over it) alongside the member's
// own signature over the request, rather than signing with the
// group's key directly.
type MemberAuth struct {
	memberIdentity *identity.Identity
	subaccount     [subaccountTokenSize]byte
	subaccountSig  [subaccountSigSize]byte
}

// NewMemberAuth splits authData (exactly 100 bytes) into the
// subaccount token and the admin's signature over it.
func NewMemberAuth(memberIdentity *identity.Identity, authData []byte) (*MemberAuth, error) {
	if len(authData) != subaccountCredentialSize {
		return nil, swarmerr.New(swarmerr.KindAuth, nil)
	}
	m := &MemberAuth{memberIdentity: memberIdentity}
	copy(m.subaccount[:], authData[:subaccountTokenSize])
	copy(m.subaccountSig[:], authData[subaccountTokenSize:])
	return m, nil
}

func (a *MemberAuth) SignRetrieve(ns namespace.Namespace, ts int64) (signature, pubKeyEd25519, subaccount, subaccountSig string) {
	sig, pub := rpc.SignRetrieve(a.memberIdentity, ns, ts)
	return sig, pub, base64.StdEncoding.EncodeToString(a.subaccount[:]), base64.StdEncoding.EncodeToString(a.subaccountSig[:])
}

func (a *MemberAuth) SignStore(ns namespace.Namespace, ts int64) (signature, pubKeyEd25519, subaccount, subaccountSig string) {
	sig, pub := rpc.SignStore(a.memberIdentity, ns, ts)
	return sig, pub, base64.StdEncoding.EncodeToString(a.subaccount[:]), base64.StdEncoding.EncodeToString(a.subaccountSig[:])
}

// NewAuth picks AdminAuth when groupSecKey is present, else MemberAuth
// when authData is a well-formed subaccount credential, else reports
// AuthError — the subtree cannot authenticate and must stop, per
// spec.md §4.7's third bullet.
func NewAuth(memberIdentity *identity.Identity, groupSecKey ed25519.PrivateKey, authData []byte) (Auth, error) {
	if len(groupSecKey) == ed25519.PrivateKeySize {
		return NewAdminAuth(groupSecKey)
	}
	if len(authData) == subaccountCredentialSize {
		return NewMemberAuth(memberIdentity, authData)
	}
	return nil, swarmerr.New(swarmerr.KindAuth, nil)
}

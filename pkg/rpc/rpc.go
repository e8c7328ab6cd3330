// Package rpc defines the swarm JSON-RPC request/response shapes and
// the signed-authentication string construction from spec.md §6.
package rpc

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
)

// CallSource is the capability an rpc caller needs: submit a single
// onion-wrapped swarm method call and get back its raw JSON result.
// Implemented by the swarm manager, so callers of this package never
// touch transport.Client directly.
type CallSource interface {
	Call(method string, params any) (result []byte, err error)
}

// RetrieveRequest is a signed (for ns != 0) or unsigned (ns == 0)
// retrieve call against one namespace.
type RetrieveRequest struct {
	PubKey        string `json:"pubkey"`
	Namespace     int16  `json:"namespace"`
	LastHash      string `json:"last_hash,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	Signature     string `json:"signature,omitempty"`
	PubKeyEd25519 string `json:"pubkey_ed25519,omitempty"`
	// Subaccount and SubaccountSig carry a member's admin-issued
	// credential when a group subtree authenticates as a non-admin
	// member rather than signing directly with the group's key.
	Subaccount    string `json:"subaccount,omitempty"`
	SubaccountSig string `json:"subaccount_sig,omitempty"`
}

// RetrieveResult is one message entry from a retrieve response.
type RetrieveResult struct {
	Hash    string `json:"hash"`
	Data    string `json:"data"` // base64
	Created int64  `json:"timestamp"`
}

// RetrieveResponse wraps a list of messages plus whether more are
// available beyond this page.
type RetrieveResponse struct {
	Messages []RetrieveResult `json:"messages"`
	More     bool             `json:"more"`
	// Timestamp is the storage node's own clock at response time ("t"
	// in the wire protocol), used to calibrate the local clock source
	// (pkg/clockutil) against swarm time.
	Timestamp int64 `json:"t,omitempty"`
}

// StoreRequest stores one message into a namespace.
type StoreRequest struct {
	PubKey        string `json:"pubkey"`
	Namespace     int16  `json:"namespace"`
	Data          string `json:"data"` // base64
	TTL           int64  `json:"ttl"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	Signature     string `json:"signature,omitempty"`
	PubKeyEd25519 string `json:"pubkey_ed25519,omitempty"`
	Subaccount    string `json:"subaccount,omitempty"`
	SubaccountSig string `json:"subaccount_sig,omitempty"`
}

// StoreResponse is the swarm's ack for a store call.
type StoreResponse struct {
	Hash    string `json:"hash"`
	Created int64  `json:"timestamp"`
}

// BatchRequest coalesces multiple sub-calls (spec.md §4.3) into one
// swarm round trip. Results come back in submission order.
type BatchRequest struct {
	Requests []BatchSubRequest `json:"requests"`
}

type BatchSubRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type BatchResponse struct {
	Results []BatchSubResult `json:"results"`
}

type BatchSubResult struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body"`
}

// SignRetrieve builds the signed-string authentication fields for a
// retrieve call against a non-default namespace:
// "retrieve" + (ns != 0 ? ns : "") + timestamp, signed with the
// account's Ed25519 identity key.
func SignRetrieve(id *identity.Identity, ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519Hex string) {
	msg := "retrieve"
	if ns != namespace.Default {
		msg += strconv.FormatInt(int64(ns), 10)
	}
	msg += strconv.FormatInt(timestampMillis, 10)
	sig := id.Sign([]byte(msg))
	return base64.StdEncoding.EncodeToString(sig), hex.EncodeToString(id.Ed25519PublicKey())
}

// SignStore builds the signed-string authentication fields for a
// store call against a non-default namespace:
// "store" + ns + timestamp, signed with the account's Ed25519
// identity key. Namespace 0 stores are never signed.
func SignStore(id *identity.Identity, ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519Hex string) {
	msg := fmt.Sprintf("store%d%d", ns, timestampMillis)
	sig := id.Sign([]byte(msg))
	return base64.StdEncoding.EncodeToString(sig), hex.EncodeToString(id.Ed25519PublicKey())
}

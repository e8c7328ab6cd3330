// Package swarmerr centralizes the error taxonomy shared by the onion
// transport, swarm manager, namespace workers and config/message sync.
package swarmerr

import (
	"errors"
	"fmt"
)

// Kind names one of the semantic error categories from the network
// design. Retryable-ness is a property of the kind, not of the call
// site, so policy stays in one place.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindOnionDecrypt
	KindJSONRPC
	KindNoUsableNodes
	KindTimeout
	KindDecode
	KindConfigMerge
	KindStore
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TransportError"
	case KindOnionDecrypt:
		return "OnionDecryptError"
	case KindJSONRPC:
		return "JsonRpcError"
	case KindNoUsableNodes:
		return "NoUsableNodes"
	case KindTimeout:
		return "Timeout"
	case KindDecode:
		return "DecodeError"
	case KindConfigMerge:
		return "ConfigMergeError"
	case KindStore:
		return "StoreError"
	case KindAuth:
		return "AuthError"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying cause with a Kind and carries the
// HTTP-ish status that produced it, when relevant, so Retryable can be
// computed without re-inspecting the transport layer.
type Error struct {
	Kind       Kind
	StatusCode int
	Cause      error
}

func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func NewStatus(kind Kind, statusCode int, cause error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable implements the policy from the error-handling design:
// transport/JSON-RPC errors retry only on 5xx or no status at all
// (network-level failure), timeouts and empty node pools always
// retry, and decode/merge/store/auth errors never do (they are
// per-item or terminal by construction).
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNoUsableNodes:
		return true
	case KindTransport, KindJSONRPC:
		if e.StatusCode == 0 {
			return true
		}
		return e.StatusCode >= 500
	default:
		return false
	}
}

// Retryable reports whether err (or any error it wraps) should trigger
// a cache invalidation + cooldown + retry, per spec §7. Errors outside
// the taxonomy are treated as non-retryable.
func Retryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

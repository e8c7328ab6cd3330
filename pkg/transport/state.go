// Package transport is the client-side onion transport: path
// acquisition and caching, request dispatch over HTTP to a service
// node's onion_req endpoint, and the network state machine other
// components (swarm manager, namespace workers) observe to know
// whether it is worth issuing requests at all.
package transport

// State is the coarse connectivity state of the onion transport,
// broadcast to subscribers via a watchable.Value so callers can wait
// for Connected instead of polling.
type State int

const (
	// StateIdle means no path has been requested yet.
	StateIdle State = iota
	// StateConnecting means a path build is in flight.
	StateConnecting
	// StateConnected means a usable cached path exists.
	StateConnected
	// StateError means the last path build or dispatch failed; a
	// cooldown is in effect before the next attempt.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Package namespace enumerates the swarm storage namespaces a client
// polls or writes to, and the conversion between the numeric wire
// value and its role in the codebase.
package namespace

import "fmt"

// Namespace is a swarm storage namespace id. Namespace 0 is the
// default 1:1 message namespace; non-zero namespaces require a
// signed retrieve/store string (spec.md §6).
type Namespace int16

const (
	Default            Namespace = 0
	UserProfile         Namespace = 2
	Contacts            Namespace = 3
	ConvoInfoVolatile   Namespace = 4
	UserGroups          Namespace = 5
	GroupMessages       Namespace = 11
	GroupKeys           Namespace = 12
	GroupInfo           Namespace = 13
	GroupMembers        Namespace = 14
)

// All lists every namespace a client namespace worker may poll, in
// the order a fresh client should prime them (default 1:1 messages
// first, then the CRDT config namespaces).
var All = []Namespace{
	Default,
	UserProfile,
	Contacts,
	ConvoInfoVolatile,
	UserGroups,
}

// GroupAll lists the namespaces polled per-group by the group
// supervisor's subtrees. GroupKeys is listed first: its merge needs
// the group's info/members config as context, but priming it before
// the others still has to happen first per spec.md §4.9.
var GroupAll = []Namespace{
	GroupKeys,
	GroupInfo,
	GroupMembers,
	GroupMessages,
}

func (n Namespace) String() string {
	switch n {
	case Default:
		return "default"
	case UserProfile:
		return "user_profile"
	case Contacts:
		return "contacts"
	case ConvoInfoVolatile:
		return "convo_info_volatile"
	case UserGroups:
		return "user_groups"
	case GroupMessages:
		return "group_messages"
	case GroupKeys:
		return "group_keys"
	case GroupInfo:
		return "group_info"
	case GroupMembers:
		return "group_members"
	default:
		return fmt.Sprintf("namespace(%d)", int16(n))
	}
}

// IsConfig reports whether this namespace carries a CRDT config
// object rather than a plain message stream.
func (n Namespace) IsConfig() bool {
	switch n {
	case UserProfile, Contacts, ConvoInfoVolatile, UserGroups, GroupKeys, GroupInfo, GroupMembers:
		return true
	default:
		return false
	}
}

// RequiresSignature reports whether a retrieve/store against this
// namespace must include the signed-string authentication fields
// from spec.md §6. Only the default namespace is unsigned.
func (n Namespace) RequiresSignature() bool {
	return n != Default
}

package cfgobject

import (
	"encoding/json"
	"sort"
)

// Config is the common surface every variant exposes, matching
// spec.md §3's Config Object operations.
type Config interface {
	TypeName() string
	Merge(inputs []MergeInput) (changed int, err error)
	CurrentHashes() []string
	Push() (PushData, error)
	ConfirmPushed(seq int64, hash string)
	NeedsPush() bool
	NeedsDump() bool
	Dump() ([]byte, error)
	ToJSON() ([]byte, error)
}

// UserProfile is the account's own display name and profile picture
// pointer.
type UserProfile struct{ *Document }

func NewUserProfile(seedDump []byte) (*UserProfile, error) {
	d, err := NewDocument("user_profile", seedDump)
	if err != nil {
		return nil, err
	}
	return &UserProfile{Document: d}, nil
}

func (p *UserProfile) SetDisplayName(name string) error { return p.Set("display_name", name) }

func (p *UserProfile) DisplayName() (string, bool, error) {
	var name string
	ok, err := p.Get("display_name", &name)
	return name, ok, err
}

// Contacts is the account's 1:1 contact list.
type Contacts struct{ *Document }

func NewContacts(seedDump []byte) (*Contacts, error) {
	d, err := NewDocument("contacts", seedDump)
	if err != nil {
		return nil, err
	}
	return &Contacts{Document: d}, nil
}

// ContactEntry is one contact list row.
type ContactEntry struct {
	SessionID   string `json:"session_id"`
	Nickname    string `json:"nickname,omitempty"`
	Approved    bool   `json:"approved"`
	Blocked     bool   `json:"blocked"`
}

func (c *Contacts) SetContact(entry ContactEntry) error {
	return c.Set("contact:"+entry.SessionID, entry)
}

// ConvoInfoVolatile is per-conversation ephemeral state (read markers,
// mute/pin flags) that is synced but not retained forever.
type ConvoInfoVolatile struct{ *Document }

func NewConvoInfoVolatile(seedDump []byte) (*ConvoInfoVolatile, error) {
	d, err := NewDocument("convo_info_volatile", seedDump)
	if err != nil {
		return nil, err
	}
	return &ConvoInfoVolatile{Document: d}, nil
}

// UserGroups is the account's membership list: which 03-prefixed
// groups it belongs to, and per-group admin/kicked flags the group
// supervisor diffs to decide which subtrees to run (spec.md §4.7).
type UserGroups struct{ *Document }

func NewUserGroups(seedDump []byte) (*UserGroups, error) {
	d, err := NewDocument("user_groups", seedDump)
	if err != nil {
		return nil, err
	}
	return &UserGroups{Document: d}, nil
}

// GroupMembership is one row of the UserGroups document.
type GroupMembership struct {
	GroupID string `json:"group_id"` // 03-prefixed SessionID
	IsAdmin bool   `json:"is_admin"`
	Kicked  bool   `json:"kicked"`
}

func (g *UserGroups) SetMembership(m GroupMembership) error {
	return g.Set("group:"+m.GroupID, m)
}

// Memberships returns every group row currently known, in
// SessionID order, for the supervisor to diff against its running
// subtree set.
func (g *UserGroups) Memberships() []GroupMembership {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GroupMembership, 0, len(g.fields))
	for field, fv := range g.fields {
		if len(field) < 6 || field[:6] != "group:" {
			continue
		}
		var m GroupMembership
		if err := json.Unmarshal(fv.Value, &m); err == nil {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// CommunityEntry is one SOGS community the account has joined, stored
// in UserGroups alongside group memberships (spec.md §4.9).
type CommunityEntry struct {
	BaseURL      string `json:"base_url"`
	Room         string `json:"room"`
	ServerPubKey string `json:"server_pub_key"` // hex
}

// Key identifies this community the way its UserGroups field and its
// blinded-id setting are keyed: "<base-url>/<room>".
func (c CommunityEntry) Key() string { return c.BaseURL + "/" + c.Room }

func (g *UserGroups) SetCommunity(entry CommunityEntry) error {
	return g.Set("community:"+entry.Key(), entry)
}

// Communities returns every community entry currently known, sorted
// by key, for the blinded-id deriver, which re-derives every entry on
// each run.
func (g *UserGroups) Communities() []CommunityEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]CommunityEntry, 0, len(g.fields))
	for field, fv := range g.fields {
		if len(field) < 10 || field[:10] != "community:" {
			continue
		}
		var c CommunityEntry
		if err := json.Unmarshal(fv.Value, &c); err == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// GroupInfo is a group's shared metadata (name, avatar, deletion
// markers).
type GroupInfo struct{ *Document }

func NewGroupInfo(seedDump []byte) (*GroupInfo, error) {
	d, err := NewDocument("group_info", seedDump)
	if err != nil {
		return nil, err
	}
	return &GroupInfo{Document: d}, nil
}

func (g *GroupInfo) SetName(name string) error { return g.Set("name", name) }

// NewGroupInfoFor builds a GroupInfo document scoped to one group, so
// its store key ("group_info:<groupID>") does not collide with other
// groups' info documents the way a bare NewGroupInfo would.
func NewGroupInfoFor(groupID string, seedDump []byte) (*GroupInfo, error) {
	d, err := NewDocument("group_info:"+groupID, seedDump)
	if err != nil {
		return nil, err
	}
	return &GroupInfo{Document: d}, nil
}

// GroupMembers is a group's member/invite/promotion list.
type GroupMembers struct{ *Document }

func NewGroupMembers(seedDump []byte) (*GroupMembers, error) {
	d, err := NewDocument("group_members", seedDump)
	if err != nil {
		return nil, err
	}
	return &GroupMembers{Document: d}, nil
}

// GroupMemberEntry is one member row.
type GroupMemberEntry struct {
	SessionID string `json:"session_id"`
	Admin     bool   `json:"admin"`
	Invited   bool   `json:"invited"`
}

func (m *GroupMembers) SetMember(entry GroupMemberEntry) error {
	return m.Set("member:"+entry.SessionID, entry)
}

// NewGroupMembersFor builds a GroupMembers document scoped to one
// group, same rationale as NewGroupInfoFor.
func NewGroupMembersFor(groupID string, seedDump []byte) (*GroupMembers, error) {
	d, err := NewDocument("group_members:"+groupID, seedDump)
	if err != nil {
		return nil, err
	}
	return &GroupMembers{Document: d}, nil
}

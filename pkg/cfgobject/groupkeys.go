package cfgobject

import "encoding/json"

// GroupKeys is the asymmetric config variant: its merge takes the
// group's Info and Members as mutable context, since a rekey event can
// rotate identity material that Info/Members need to reflect
// (spec.md §4.6: "Keys additionally may rekey and its merge takes
// (GroupInfo, GroupMembers) as context so that merging keys can
// propagate identity rotations into the other two configs").
type GroupKeys struct{ *Document }

func NewGroupKeys(seedDump []byte) (*GroupKeys, error) {
	d, err := NewDocument("group_keys", seedDump)
	if err != nil {
		return nil, err
	}
	return &GroupKeys{Document: d}, nil
}

// NewGroupKeysFor builds a GroupKeys document scoped to one group,
// same rationale as NewGroupInfoFor.
func NewGroupKeysFor(groupID string, seedDump []byte) (*GroupKeys, error) {
	d, err := NewDocument("group_keys:"+groupID, seedDump)
	if err != nil {
		return nil, err
	}
	return &GroupKeys{Document: d}, nil
}

// KeyGeneration is one rekey event: a new encryption key plus that
// key's own generation counter; a higher generation supersedes a
// lower one.
type KeyGeneration struct {
	Generation uint64 `json:"generation"`
	EncKey     []byte `json:"enc_key"`
}

// CurrentGeneration returns the highest-generation key this document
// has merged, or ok=false if it has never seen one.
func (k *GroupKeys) CurrentGeneration() (gen KeyGeneration, ok bool, err error) {
	ok, err = k.Get("current", &gen)
	return gen, ok, err
}

// CurrentKey returns the raw encryption key of the highest-generation
// rotation this document has merged, satisfying the GroupKeySource
// interface group message decryption needs.
func (k *GroupKeys) CurrentKey() (key []byte, ok bool) {
	gen, ok, err := k.CurrentGeneration()
	if err != nil || !ok {
		return nil, false
	}
	return gen.EncKey, true
}

// MergeWithContext folds a batch of retrieved key-rotation messages
// into the document. Whenever a merged generation supersedes the
// current one, it is also applied as a rotation marker on info and
// members, so a single merge keeps all three group configs
// consistent — the supervisor's own subtree treats this as the
// "initial key priming" step described in spec.md §4.7.
func (k *GroupKeys) MergeWithContext(inputs []MergeInput, info *GroupInfo, members *GroupMembers) (changed int, err error) {
	before, hadBefore, err := k.CurrentGeneration()
	if err != nil {
		return 0, err
	}

	for _, in := range inputs {
		var gen KeyGeneration
		if err := json.Unmarshal(in.Data, &gen); err != nil {
			k.recordMergedHash(in.Hash)
			continue // not a well-formed rotation event; still consumed
		}
		k.recordMergedHash(in.Hash)
		if hadBefore && gen.Generation <= before.Generation {
			continue
		}
		if err := k.Set("current", gen); err != nil {
			return changed, err
		}
		if info != nil {
			if err := info.Set("key_generation", gen.Generation); err != nil {
				return changed, err
			}
		}
		if members != nil {
			if err := members.Set("key_generation", gen.Generation); err != nil {
				return changed, err
			}
		}
		before = gen
		hadBefore = true
		changed++
	}

	return changed, nil
}

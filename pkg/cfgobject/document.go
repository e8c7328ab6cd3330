// Package cfgobject implements the CRDT config objects synced through
// the swarm's config namespaces: a small last-writer-wins document
// merged from remote dumps and locally mutated, exposing the
// merge/dump/push/confirm_pushed cycle spec.md §4.6 describes.
package cfgobject

import (
	"encoding/json"
	"fmt"
	"sync"
)

// PushData is what a config object hands its caller to write back to
// the swarm: the compacted dump to store, plus the hashes of the
// message(s) it was merged from that are now obsolete and should be
// deleted in the same write.
type PushData struct {
	Dump           []byte
	ObsoleteHashes []string
	Seq            int64
}

// MergeInput is one retrieved config message: its swarm hash (tracked
// so a later push can ask the swarm to delete it) and its opaque
// dump-shaped payload.
type MergeInput struct {
	Hash string
	Data []byte
}

type fieldValue struct {
	Value json.RawMessage `json:"v"`
	Clock uint64          `json:"c"`
}

type wireDocument struct {
	Fields map[string]fieldValue `json:"fields"`
}

// Document is the concrete last-writer-wins CRDT backing every config
// variant: a set of named fields, each with a logical clock, merged by
// keeping the higher clock per field. Variants (UserProfile, Contacts,
// ...) are thin typed views over an embedded *Document.
type Document struct {
	mu sync.Mutex

	typeName string
	fields   map[string]fieldValue
	clock    uint64

	seenHashes []string
	pendingHashes []string

	localSeq   int64
	pushedSeq  int64
	pendingSeq int64

	needsDump bool
}

// NewDocument creates an empty document for typeName (e.g.
// "user_profile"), optionally seeded from a previously persisted dump.
func NewDocument(typeName string, seedDump []byte) (*Document, error) {
	d := &Document{typeName: typeName, fields: make(map[string]fieldValue)}
	if len(seedDump) == 0 {
		return d, nil
	}
	var wire wireDocument
	if err := json.Unmarshal(seedDump, &wire); err != nil {
		return nil, fmt.Errorf("cfgobject: %s: decode seed dump: %w", typeName, err)
	}
	d.fields = wire.Fields
	for _, f := range wire.Fields {
		if f.Clock > d.clock {
			d.clock = f.Clock
		}
	}
	return d, nil
}

// TypeName identifies this config's variant, used as the store's
// (type, id) key.
func (d *Document) TypeName() string { return d.typeName }

// Set performs a local mutation: field takes value at a clock strictly
// greater than every clock this document has seen, so merges from
// other devices never shadow it by coincidence.
func (d *Document) Set(field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cfgobject: %s: encode field %s: %w", d.typeName, field, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock++
	d.fields[field] = fieldValue{Value: raw, Clock: d.clock}
	d.localSeq++
	d.needsDump = true
	return nil
}

// Get decodes field into out, returning ok=false if unset.
func (d *Document) Get(field string, out any) (ok bool, err error) {
	d.mu.Lock()
	fv, present := d.fields[field]
	d.mu.Unlock()
	if !present {
		return false, nil
	}
	if err := json.Unmarshal(fv.Value, out); err != nil {
		return false, fmt.Errorf("cfgobject: %s: decode field %s: %w", d.typeName, field, err)
	}
	return true, nil
}

// Merge folds a batch of retrieved messages into the document,
// keeping each field's higher-clock value. It returns the number of
// fields actually changed, and always marks the document dirty for
// dump (spec.md §4.6: "a change is always signaled") even if every
// field lost out to the local value, since the caller's job is to
// persist the latest merged view regardless.
func (d *Document) Merge(inputs []MergeInput) (changed int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, in := range inputs {
		var wire wireDocument
		if err := json.Unmarshal(in.Data, &wire); err != nil {
			return changed, fmt.Errorf("cfgobject: %s: decode merge input %s: %w", d.typeName, in.Hash, err)
		}
		for field, incoming := range wire.Fields {
			current, present := d.fields[field]
			if !present || incoming.Clock > current.Clock {
				d.fields[field] = incoming
				changed++
			}
			if incoming.Clock > d.clock {
				d.clock = incoming.Clock
			}
		}
		d.seenHashes = append(d.seenHashes, in.Hash)
	}

	d.needsDump = true
	return changed, nil
}

// recordMergedHash tracks hash as merged-but-not-yet-pushed and marks
// the document dirty, for variants (GroupKeys) whose merge semantics
// differ from the generic per-field LWW fold.
func (d *Document) recordMergedHash(hash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seenHashes = append(d.seenHashes, hash)
	d.needsDump = true
}

// CurrentHashes returns the swarm message hashes merged into this
// document since the last push, which the next push should ask the
// swarm to delete once the compacted dump lands.
func (d *Document) CurrentHashes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.seenHashes...)
}

// NeedsPush reports whether a local mutation (Set) has happened since
// the last confirmed push. Merging remote messages alone does not make
// a document need a push.
func (d *Document) NeedsPush() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.localSeq > d.pushedSeq
}

// NeedsDump reports whether state has changed since the last Dump.
func (d *Document) NeedsDump() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.needsDump
}

// Dump serializes the document to its opaque wire form and clears the
// needs-dump flag.
func (d *Document) Dump() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, err := json.Marshal(wireDocument{Fields: d.fields})
	if err != nil {
		return nil, fmt.Errorf("cfgobject: %s: dump: %w", d.typeName, err)
	}
	d.needsDump = false
	return out, nil
}

// ToJSON renders a human-readable mirror of the document's current
// field values, the form persisted alongside the opaque dump so the
// store's configs table stays inspectable.
func (d *Document) ToJSON() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	plain := make(map[string]json.RawMessage, len(d.fields))
	for k, v := range d.fields {
		plain[k] = v.Value
	}
	return json.Marshal(plain)
}

// Push prepares the data to write back to the swarm: the current
// dump, the hashes merged since the last push (now obsolete), and the
// sequence number ConfirmPushed must be called with.
func (d *Document) Push() (PushData, error) {
	dump, err := d.Dump()
	if err != nil {
		return PushData{}, err
	}

	d.mu.Lock()
	d.pendingSeq = d.localSeq
	d.pendingHashes = append([]string(nil), d.seenHashes...)
	seq := d.pendingSeq
	hashes := d.pendingHashes
	d.mu.Unlock()

	return PushData{Dump: dump, ObsoleteHashes: hashes, Seq: seq}, nil
}

// ConfirmPushed records that seq was durably written to the swarm,
// clearing the hashes that push reported as obsolete. A stale seq
// (superseded by a newer local mutation that started its own push
// cycle) is ignored.
func (d *Document) ConfirmPushed(seq int64, hash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.pendingSeq {
		return
	}
	d.pushedSeq = seq
	remaining := d.seenHashes[:0]
	pendingSet := make(map[string]bool, len(d.pendingHashes))
	for _, h := range d.pendingHashes {
		pendingSet[h] = true
	}
	for _, h := range d.seenHashes {
		if !pendingSet[h] {
			remaining = append(remaining, h)
		}
	}
	d.seenHashes = remaining
	d.pendingHashes = nil
}

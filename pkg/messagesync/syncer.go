// Package messagesync decodes and persists the ciphertexts a namespace
// worker delivers: ECDH-decrypted 1:1 messages on the default
// namespace, symmetric-key-decrypted group messages on a group's
// message namespace, unpadding, Content decode, and idempotent
// storage, matching spec.md §4.5.
package messagesync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/cryptoprovider"
	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/nsworker"
	"github.com/montana2ab/swarmclient/pkg/store"
)

// GroupKeySource exposes the currently-active symmetric group key, as
// maintained by a group's GroupKeys config object. Absent for 1:1
// syncers.
type GroupKeySource interface {
	CurrentKey() (key []byte, ok bool)
}

// Syncer decodes one namespace's ciphertext stream into Stored Message
// rows. A single Syncer is either a 1:1 syncer (decrypts with the
// account's own identity) or a group syncer (decrypts with a
// GroupKeySource); never both.
type Syncer struct {
	source string // the (pubkey or group id) this stream's messages are sourced from, stored as Stored Message's "source"
	ns     namespace.Namespace
	self   common.SessionID

	id   *identity.Identity // set for 1:1 syncers
	keys GroupKeySource      // set for group syncers

	store *store.Store
	log   *logrus.Entry
}

// NewDirect builds a Syncer for the default (1:1) namespace, decrypting
// with the account's own identity key.
func NewDirect(id *identity.Identity, st *store.Store, log *logrus.Entry) *Syncer {
	self := id.SessionID()
	return &Syncer{
		source: self.String(),
		ns:     namespace.Default,
		self:   self,
		id:     id,
		store:  st,
		log:    log.WithField("sync", "direct"),
	}
}

// NewGroup builds a Syncer for one group's message namespace,
// decrypting with keys (the group's GroupKeys current generation).
func NewGroup(groupID common.SessionID, self common.SessionID, keys GroupKeySource, st *store.Store, log *logrus.Entry) *Syncer {
	return &Syncer{
		source: groupID.String(),
		ns:     namespace.GroupMessages,
		self:   self,
		keys:   keys,
		store:  st,
		log:    log.WithField("sync", "group").WithField("group", groupID.String()),
	}
}

// Run drains batches from msgs, decodes each message, and persists the
// whole batch atomically, until msgs closes or ctx is cancelled. A
// single bad message is logged and skipped; it never aborts its batch.
func (s *Syncer) Run(ctx context.Context, msgs <-chan nsworker.Message) {
	for {
		var first nsworker.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			first = m
		}

		batch := []nsworker.Message{first}
	drain:
		for {
			select {
			case m, ok := <-msgs:
				if !ok {
					break drain
				}
				batch = append(batch, m)
			default:
				break drain
			}
		}

		s.processBatch(ctx, batch)
	}
}

func (s *Syncer) processBatch(ctx context.Context, batch []nsworker.Message) {
	rows := make([]store.MessageRow, 0, len(batch))
	for _, m := range batch {
		row, err := s.decode(m)
		if err != nil {
			s.log.WithError(err).WithField("hash", m.Hash).Warn("dropping undecodable message")
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return
	}
	if _, err := s.store.InsertMessagesBatch(ctx, rows); err != nil {
		s.log.WithError(err).Error("persisting message batch failed")
	}
}

func (s *Syncer) decode(m nsworker.Message) (store.MessageRow, error) {
	var (
		content []byte
		sender  string
	)

	if s.keys != nil {
		key, ok := s.keys.CurrentKey()
		if !ok {
			return store.MessageRow{}, fmt.Errorf("messagesync: no group key available yet")
		}
		plaintext, err := cryptoprovider.OpenXChaCha20Poly1305(key, m.Data, nil)
		if err != nil {
			return store.MessageRow{}, fmt.Errorf("messagesync: group decrypt: %w", err)
		}
		content = plaintext
		sender = s.source
	} else {
		senderID, padded, err := s.id.Decrypt(m.Data)
		if err != nil {
			return store.MessageRow{}, fmt.Errorf("messagesync: decrypt: %w", err)
		}
		content = Strip(padded)
		sender = senderID.String()
	}

	var env Envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return store.MessageRow{}, fmt.Errorf("messagesync: decode envelope: %w", err)
	}

	receiver := s.self.String()
	if env.Content.DataMessage != nil && env.Content.DataMessage.SyncTarget != "" {
		receiver = env.Content.DataMessage.SyncTarget
	}

	payload, err := json.Marshal(env.Content)
	if err != nil {
		return store.MessageRow{}, fmt.Errorf("messagesync: re-marshal content: %w", err)
	}

	return store.MessageRow{
		Source:    s.source,
		Hash:      m.Hash,
		Namespace: int16(s.ns),
		Sender:    sender,
		Receiver:  receiver,
		Created:   m.Created,
		JobState:  "none",
		Payload:   payload,
	}, nil
}

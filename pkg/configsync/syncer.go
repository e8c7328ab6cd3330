// Package configsync drives one CRDT config variant end to end: it
// streams messages from a namespace worker, merges them, persists the
// result, and pushes local changes back, as four cooperating
// goroutines (spec.md §4.6).
package configsync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/clockutil"
	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/nsworker"
	"github.com/montana2ab/swarmclient/pkg/rpc"
	"github.com/montana2ab/swarmclient/pkg/store"
	"github.com/montana2ab/swarmclient/pkg/watchable"
)

// Caller issues a signed swarm store call. Implemented by the swarm
// manager, directly or through the batch coordinator.
type Caller interface {
	Call(method string, params any) ([]byte, error)
}

// StoreSigner produces the authenticated-store fields for one config
// push. An account signs its own config namespaces directly (see
// IdentityStoreSigner); a group subtree's admin or member auth variant
// signs a group's config namespaces instead (spec.md §4.7), which is
// why this is an interface rather than a concrete *identity.Identity
// field.
type StoreSigner interface {
	SignStore(ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519, subaccount, subaccountSig string)
}

// IdentityStoreSigner adapts an account identity to StoreSigner for
// the account's own config namespaces, where no subaccount credential
// applies.
type IdentityStoreSigner struct{ ID *identity.Identity }

func (s IdentityStoreSigner) SignStore(ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519, subaccount, subaccountSig string) {
	sig, pub := rpc.SignStore(s.ID, ns, timestampMillis)
	return sig, pub, "", ""
}

// Syncer owns one config variant's lifecycle once its namespace worker
// is already running: ingest its messages, persist merges, and push
// local mutations back, retrying failed pushes.
type Syncer struct {
	cfg       cfgobject.Config
	ns        namespace.Namespace
	pubKeyHex string
	signer    StoreSigner
	caller    Caller
	store     *store.Store
	retryWait time.Duration
	clock     *clockutil.Source
	log       *logrus.Entry

	changed *watchable.Value[uint64]
	gen     uint64
}

// SetClock attaches a calibrated clock source for signing push
// timestamps. Optional; a nil clock (the default) falls back to the
// local wall clock. Call it before Run.
func (s *Syncer) SetClock(clock *clockutil.Source) { s.clock = clock }

func (s *Syncer) now() int64 {
	if s.clock == nil {
		return time.Now().UnixMilli()
	}
	return int64(s.clock.Now().AsMillis())
}

// NewSyncer builds a Syncer. pubKeyHex is the swarm pubkey config
// pushes are stored under — the account's own pubkey for account
// configs, or the group id for a group's configs.
func NewSyncer(cfg cfgobject.Config, ns namespace.Namespace, pubKeyHex string, signer StoreSigner, caller Caller, st *store.Store, pushRetryDelay time.Duration, log *logrus.Entry) *Syncer {
	return &Syncer{
		cfg:       cfg,
		ns:        ns,
		pubKeyHex: pubKeyHex,
		signer:    signer,
		caller:    caller,
		store:     st,
		retryWait: pushRetryDelay,
		log:       log.WithField("config", cfg.TypeName()),
		changed:   watchable.New(uint64(0)),
	}
}

// Changed returns a subscriber woken every time this config's
// underlying document is merged or locally mutated. The group
// supervisor and the blinded-id deriver both watch a UserGroups
// syncer's Changed subscriber to react to membership/community
// changes without polling the store.
func (s *Syncer) Changed() *watchable.Subscriber[uint64] {
	return s.changed.Subscribe()
}

// Run drives ingest, persist and push concurrently against msgs (the
// namespace worker's stream — spec.md's fourth sub-task) until ctx is
// cancelled or msgs closes.
func (s *Syncer) Run(ctx context.Context, msgs <-chan nsworker.Message) {
	// Cover config state that was locally mutated before Run started
	// (e.g. a profile edit queued while the worker was still starting).
	if s.cfg.NeedsDump() {
		s.signalChanged()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ingest(ctx, msgs)
	}()

	go s.persist(ctx)
	go s.push(ctx)

	<-done
}

// ingest merges each batch of messages drained together from the
// namespace worker, signaling a change after every non-empty merge —
// spec.md §4.6's "a change is always signaled".
func (s *Syncer) ingest(ctx context.Context, msgs <-chan nsworker.Message) {
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

		batch := []cfgobject.MergeInput{{Hash: first.Hash, Data: first.Data}}
	drain:
		for {
			select {
			case m, ok := <-msgs:
				if !ok {
					break drain
				}
				batch = append(batch, cfgobject.MergeInput{Hash: m.Hash, Data: m.Data})
			default:
				break drain
			}
		}

		if _, err := s.cfg.Merge(batch); err != nil {
			s.log.WithError(err).Warn("config merge failed")
			continue
		}
		s.signalChanged()
	}
}

func (s *Syncer) signalChanged() {
	s.changed.ModifyIfChanged(func(g *uint64) bool {
		*g++
		return true
	})
}

// persist upserts the config's dump and JSON mirror on every signaled
// change.
func (s *Syncer) persist(ctx context.Context) {
	sub := s.changed.Subscribe()
	for {
		_, ok := sub.Changed()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !s.cfg.NeedsDump() {
			continue
		}
		dump, err := s.cfg.Dump()
		if err != nil {
			s.log.WithError(err).Error("config dump failed")
			continue
		}
		if err := s.store.SaveConfigDump(ctx, s.cfg.TypeName(), dump); err != nil {
			s.log.WithError(err).Error("config persist failed")
		}
	}
}

// push waits for NeedsPush, writes the compacted dump to the swarm,
// and confirms. The obsolete hashes a push reports are not deleted
// from the swarm. On failure it waits retryWait before rechecking,
// per spec.md §4.6.
func (s *Syncer) push(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.cfg.NeedsPush() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryWait):
			}
			continue
		}

		data, err := s.cfg.Push()
		if err != nil {
			s.log.WithError(err).Error("config push assembly failed")
			s.sleepRetry(ctx)
			continue
		}

		ts := s.now()
		sig, pub, subaccount, subaccountSig := s.signer.SignStore(s.ns, ts)
		storeReq := rpc.StoreRequest{
			PubKey:        s.pubKeyHex,
			Namespace:     int16(s.ns),
			Data:          base64.StdEncoding.EncodeToString(data.Dump),
			Timestamp:     ts,
			Signature:     sig,
			PubKeyEd25519: pub,
			Subaccount:    subaccount,
			SubaccountSig: subaccountSig,
		}

		respBytes, err := s.caller.Call("store", storeReq)
		if err != nil {
			s.log.WithError(err).Warn("config push failed, will retry")
			s.sleepRetry(ctx)
			continue
		}

		var resp rpc.StoreResponse
		if err := json.Unmarshal(respBytes, &resp); err != nil {
			s.log.WithError(err).Warn("config push response malformed, will retry")
			s.sleepRetry(ctx)
			continue
		}

		s.cfg.ConfirmPushed(data.Seq, resp.Hash)
	}
}

func (s *Syncer) sleepRetry(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.retryWait):
	}
}

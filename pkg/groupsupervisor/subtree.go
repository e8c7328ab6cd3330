package groupsupervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/configsync"
	"github.com/montana2ab/swarmclient/pkg/cryptoprovider"
	"github.com/montana2ab/swarmclient/pkg/messagesync"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/nsworker"
	"github.com/montana2ab/swarmclient/pkg/store"
)

// Caller issues a signed swarm call for one group's namespaces.
// Implemented by the swarm manager, directly or through the batch
// coordinator.
type Caller interface {
	Call(method string, params any) ([]byte, error)
}

// GroupConfigState holds one group's three config objects, loaded
// once from the store when its subtree starts.
type GroupConfigState struct {
	GroupID common.SessionID
	Info    *cfgobject.GroupInfo
	Members *cfgobject.GroupMembers
	Keys    *cfgobject.GroupKeys
}

// LoadGroupConfigState loads (or creates empty) the three group
// config documents for groupID.
func LoadGroupConfigState(ctx context.Context, st *store.Store, groupID common.SessionID) (*GroupConfigState, error) {
	id := groupID.String()

	infoRow, _, err := st.LoadConfig(ctx, "group_info:"+id)
	if err != nil {
		return nil, err
	}
	info, err := cfgobject.NewGroupInfoFor(id, infoRow.Dump)
	if err != nil {
		return nil, err
	}

	membersRow, _, err := st.LoadConfig(ctx, "group_members:"+id)
	if err != nil {
		return nil, err
	}
	members, err := cfgobject.NewGroupMembersFor(id, membersRow.Dump)
	if err != nil {
		return nil, err
	}

	keysRow, _, err := st.LoadConfig(ctx, "group_keys:"+id)
	if err != nil {
		return nil, err
	}
	keys, err := cfgobject.NewGroupKeysFor(id, keysRow.Dump)
	if err != nil {
		return nil, err
	}

	return &GroupConfigState{GroupID: groupID, Info: info, Members: members, Keys: keys}, nil
}

// Subtree runs one group's namespace workers, config merger and
// message sync, per spec.md §4.7's "Per-group subtree".
type Subtree struct {
	groupID  common.SessionID
	self     common.SessionID
	auth     Auth
	caller   Caller
	store    *store.Store
	state    *GroupConfigState
	interval time.Duration
	retry    time.Duration
	log      *logrus.Entry
}

// NewSubtree builds a Subtree. interval is the group namespace poll
// period (the supervisor passes the group poll interval, not the
// account's own); retry is the config-push retry delay, the same one
// the account's own config syncers use.
func NewSubtree(groupID, self common.SessionID, auth Auth, caller Caller, st *store.Store, state *GroupConfigState, interval, retry time.Duration, log *logrus.Entry) *Subtree {
	return &Subtree{
		groupID:  groupID,
		self:     self,
		auth:     auth,
		caller:   caller,
		store:    st,
		state:    state,
		interval: interval,
		retry:    retry,
		log:      log.WithField("group", groupID.String()),
	}
}

// Run starts the group's namespace workers and drives the config
// merger and message sync until ctx is cancelled or the Keys stream
// ends. It returns a non-nil error when initial key priming fails
// (the Keys stream closes first, or the first merge or persist fails;
// the caller drops the subtree and logs it), and nil on ctx
// cancellation or when the Keys stream ends after priming.
func (s *Subtree) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := s.groupID.String()

	keysWorker := nsworker.New(id, namespace.GroupKeys, s.auth, s.caller, s.store, s.interval, nil, s.log)
	infoWorker := nsworker.New(id, namespace.GroupInfo, s.auth, s.caller, s.store, s.interval, nil, s.log)
	membersWorker := nsworker.New(id, namespace.GroupMembers, s.auth, s.caller, s.store, s.interval, nil, s.log)
	msgWorker := nsworker.New(id, namespace.GroupMessages, s.auth, s.caller, s.store, s.interval, nil, s.log)

	go keysWorker.Run(ctx)
	go infoWorker.Run(ctx)
	go membersWorker.Run(ctx)
	go msgWorker.Run(ctx)

	// primed carries the outcome of the initial key priming step
	// exactly once; keysDone carries the eventual terminal error of the
	// keys-merge loop for the whole subtree's lifetime.
	primed := make(chan error, 1)
	keysDone := make(chan error, 1)
	go func() { keysDone <- s.runKeysMerge(ctx, keysWorker.Output(), primed) }()

	// Initial key priming: info and members ciphertexts are encrypted
	// under the group's current key, so their syncers must not start
	// decrypting until the first Keys batch has merged (spec.md §4.7).
	select {
	case err := <-primed:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return nil
	}

	infoSyncer := configsync.NewSyncer(s.state.Info, namespace.GroupInfo, id, s.auth, s.caller, s.store, s.retry, s.log)
	membersSyncer := configsync.NewSyncer(s.state.Members, namespace.GroupMembers, id, s.auth, s.caller, s.store, s.retry, s.log)
	msgSyncer := messagesync.NewGroup(s.groupID, s.self, s.state.Keys, s.store, s.log)

	decryptedInfo := decryptGroupChannel(ctx, s.state.Keys, infoWorker.Output(), s.log)
	decryptedMembers := decryptGroupChannel(ctx, s.state.Keys, membersWorker.Output(), s.log)

	done := make(chan struct{})
	go func() { defer close(done); infoSyncer.Run(ctx, decryptedInfo) }()
	go membersSyncer.Run(ctx, decryptedMembers)
	go msgSyncer.Run(ctx, msgWorker.Output())

	select {
	case <-ctx.Done():
		<-done
		return nil
	case <-keysDone:
		// The keys stream ended after priming succeeded; that is a
		// normal shutdown (e.g. the worker stopped because ctx was
		// cancelled elsewhere), not an abort condition.
		cancel()
		<-done
		return nil
	}
}

// runKeysMerge waits for the first Keys batch and merges it (with
// Info/Members as context), signaling the outcome on primed exactly
// once, then keeps folding in later rotations for the rest of the
// subtree's lifetime. msgs closing before the first successful merge
// is reported on primed as an error, aborting the whole subtree per
// spec.md §4.7; after priming, a merge failure is only logged.
func (s *Subtree) runKeysMerge(ctx context.Context, msgs <-chan nsworker.Message, primed chan<- error) error {
	first, ok := <-msgs
	if !ok {
		err := fmt.Errorf("groupsupervisor: group %s: keys stream ended before initial priming", s.groupID.String())
		primed <- err
		return err
	}
	if _, err := s.state.Keys.MergeWithContext([]cfgobject.MergeInput{{Hash: first.Hash, Data: first.Data}}, s.state.Info, s.state.Members); err != nil {
		primed <- err
		return err
	}
	if err := s.persistState(ctx); err != nil {
		primed <- err
		return err
	}
	primed <- nil

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			batch := []cfgobject.MergeInput{{Hash: m.Hash, Data: m.Data}}
		drain:
			for {
				select {
				case mm, ok := <-msgs:
					if !ok {
						break drain
					}
					batch = append(batch, cfgobject.MergeInput{Hash: mm.Hash, Data: mm.Data})
				default:
					break drain
				}
			}
			if _, err := s.state.Keys.MergeWithContext(batch, s.state.Info, s.state.Members); err != nil {
				s.log.WithError(err).Warn("group keys merge failed")
				continue
			}
			if err := s.persistState(ctx); err != nil {
				s.log.WithError(err).Error("persisting group config state failed")
			}
		}
	}
}

// persistState writes Info, Members and Keys in a single transaction,
// per spec.md §4.7's "the merger ... persists all three in a single
// transaction per change".
func (s *Subtree) persistState(ctx context.Context) error {
	id := s.groupID.String()

	infoDump, err := s.state.Info.Dump()
	if err != nil {
		return err
	}
	membersDump, err := s.state.Members.Dump()
	if err != nil {
		return err
	}
	keysDump, err := s.state.Keys.Dump()
	if err != nil {
		return err
	}

	return s.store.SaveConfigDumpsBatch(ctx, map[string][]byte{
		"group_info:" + id:    infoDump,
		"group_members:" + id: membersDump,
		"group_keys:" + id:    keysDump,
	})
}

// decryptGroupChannel decrypts each nsworker.Message's ciphertext with
// keys' current symmetric key before forwarding it, since a group's
// Info and Members config namespaces (unlike Keys itself) carry
// ciphertext encrypted under the group's rotating key. A message
// dropped for lack of a key or a bad seal is logged and skipped, same
// policy as messagesync's group decode path.
func decryptGroupChannel(ctx context.Context, keys messagesync.GroupKeySource, in <-chan nsworker.Message, log *logrus.Entry) <-chan nsworker.Message {
	out := make(chan nsworker.Message, 32)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				key, ok := keys.CurrentKey()
				if !ok {
					log.Warn("dropping group config message: no group key primed yet")
					continue
				}
				plaintext, err := cryptoprovider.OpenXChaCha20Poly1305(key, m.Data, nil)
				if err != nil {
					log.WithError(err).Warn("dropping undecodable group config message")
					continue
				}
				select {
				case out <- nsworker.Message{Hash: m.Hash, Created: m.Created, Data: plaintext}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

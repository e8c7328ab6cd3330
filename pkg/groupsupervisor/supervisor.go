package groupsupervisor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/store"
	"github.com/montana2ab/swarmclient/pkg/watchable"
)

// SwarmFactory builds the swarm call surface for one group's own
// swarm (resolved against the group id, not the account's pubkey).
type SwarmFactory interface {
	ForGroup(ctx context.Context, groupID common.SessionID) (Caller, error)
}

// AuthFactory builds the admin-or-member Auth variant for one group,
// from whatever credential the account holds for it (spec.md §4.7).
type AuthFactory interface {
	ForGroup(groupID common.SessionID, membership cfgobject.GroupMembership) (Auth, error)
}

// Supervisor watches the account's UserGroups config and keeps exactly
// one running Subtree per current membership, per spec.md §4.7's
// "Lifecycle": new memberships start a subtree, changed ones are
// restarted, removed ones are stopped — and a subtree that errors out
// is dropped and logged rather than taking the rest down with it.
type Supervisor struct {
	self       common.SessionID
	userGroups *cfgobject.UserGroups
	changed    *watchable.Subscriber[uint64]
	swarms     SwarmFactory
	auths      AuthFactory
	store      *store.Store
	interval   time.Duration
	retry      time.Duration
	log        *logrus.Entry

	mu      sync.Mutex
	running map[string]*runningSubtree
}

type runningSubtree struct {
	membership cfgobject.GroupMembership
	cancel     context.CancelFunc
}

// NewSupervisor builds a Supervisor. changed should be the account's
// UserGroups config syncer's Changed() subscriber, so the supervisor
// reacts the moment membership merges in without polling the store.
func NewSupervisor(self common.SessionID, userGroups *cfgobject.UserGroups, changed *watchable.Subscriber[uint64], swarms SwarmFactory, auths AuthFactory, st *store.Store, interval, retry time.Duration, log *logrus.Entry) *Supervisor {
	return &Supervisor{
		self:       self,
		userGroups: userGroups,
		changed:    changed,
		swarms:     swarms,
		auths:      auths,
		store:      st,
		interval:   interval,
		retry:      retry,
		log:        log.WithField("component", "group_supervisor"),
		running:    make(map[string]*runningSubtree),
	}
}

// Run reconciles the running subtree set against the current
// membership list, then again every time UserGroups changes, until
// ctx is cancelled.
func (sup *Supervisor) Run(ctx context.Context) {
	defer sup.stopAll()

	changes := make(chan struct{}, 1)
	go func() {
		for {
			_, ok := sup.changed.Changed()
			if !ok {
				return
			}
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}()

	sup.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			sup.reconcile(ctx)
		}
	}
}

// reconcile diffs the current membership list against the running
// subtree set: starts subtrees for new or changed memberships, stops
// subtrees for memberships no longer present or now kicked.
func (sup *Supervisor) reconcile(ctx context.Context) {
	memberships := sup.userGroups.Memberships()

	wanted := make(map[string]cfgobject.GroupMembership, len(memberships))
	for _, m := range memberships {
		if m.Kicked {
			continue
		}
		wanted[m.GroupID] = m
	}

	sup.mu.Lock()
	var toStop []string
	for id, rt := range sup.running {
		m, stillWanted := wanted[id]
		if !stillWanted || m != rt.membership {
			toStop = append(toStop, id)
		}
	}
	sup.mu.Unlock()

	for _, id := range toStop {
		sup.stop(id)
	}

	for id, m := range wanted {
		sup.mu.Lock()
		_, running := sup.running[id]
		sup.mu.Unlock()
		if running {
			continue
		}
		sup.start(ctx, m)
	}
}

func (sup *Supervisor) start(ctx context.Context, membership cfgobject.GroupMembership) {
	log := sup.log.WithField("group", membership.GroupID)

	groupID, err := common.ParseSessionID(membership.GroupID)
	if err != nil {
		log.WithError(err).Error("invalid group id in user_groups, skipping")
		return
	}

	auth, err := sup.auths.ForGroup(groupID, membership)
	if err != nil {
		log.WithError(err).Error("no usable credential for group, skipping")
		return
	}

	caller, err := sup.swarms.ForGroup(ctx, groupID)
	if err != nil {
		log.WithError(err).Error("resolving group swarm failed, skipping")
		return
	}

	state, err := LoadGroupConfigState(ctx, sup.store, groupID)
	if err != nil {
		log.WithError(err).Error("loading group config state failed, skipping")
		return
	}

	subtreeCtx, cancel := context.WithCancel(ctx)
	subtree := NewSubtree(groupID, sup.self, auth, caller, sup.store, state, sup.interval, sup.retry, sup.log)

	sup.mu.Lock()
	sup.running[membership.GroupID] = &runningSubtree{membership: membership, cancel: cancel}
	sup.mu.Unlock()

	go func() {
		if err := subtree.Run(subtreeCtx); err != nil {
			log.WithError(err).Warn("group subtree stopped")
		}
		// subtreeCtx.Err() is non-nil only if stop() (or the parent ctx)
		// cancelled it; in that case the running entry is already gone
		// or about to be replaced. Otherwise the subtree ended on its
		// own (e.g. it aborted on key-priming failure) and the entry
		// must be cleared so the next reconcile can restart it.
		if subtreeCtx.Err() == nil {
			sup.mu.Lock()
			delete(sup.running, membership.GroupID)
			sup.mu.Unlock()
		}
	}()
}

func (sup *Supervisor) stop(groupID string) {
	sup.mu.Lock()
	rt, ok := sup.running[groupID]
	if ok {
		delete(sup.running, groupID)
	}
	sup.mu.Unlock()
	if ok {
		rt.cancel()
	}
}

// RunningGroupIDs returns the group ids with a live subtree right
// now, for diagnostics.
func (sup *Supervisor) RunningGroupIDs() []string {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	out := make([]string, 0, len(sup.running))
	for id := range sup.running {
		out = append(out, id)
	}
	return out
}

func (sup *Supervisor) stopAll() {
	sup.mu.Lock()
	running := sup.running
	sup.running = make(map[string]*runningSubtree)
	sup.mu.Unlock()
	for _, rt := range running {
		rt.cancel()
	}
}

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/groupsupervisor"
	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/metrics"
	"github.com/montana2ab/swarmclient/pkg/middleware"
	"github.com/montana2ab/swarmclient/pkg/store"
	"github.com/montana2ab/swarmclient/pkg/swarmmgr"
	"github.com/montana2ab/swarmclient/pkg/transport"
)

// swarmSwarmFactory resolves a fresh swarmmgr.Manager for a group's
// own pubkey on demand, so the group supervisor never has to know how
// a swarm is resolved or dispatched to (spec.md §4.7/§4.1).
type swarmSwarmFactory struct {
	seeds         *transport.SeedClient
	dispatch      *transport.Client
	errorCooldown time.Duration
	metrics       *metrics.Registry
	nodeLimit     *middleware.NodeRateLimiter
	log           *logrus.Entry
}

func (f *swarmSwarmFactory) ForGroup(ctx context.Context, groupID common.SessionID) (groupsupervisor.Caller, error) {
	mgr := swarmmgr.NewManager(groupID.String(), f.seeds, f.dispatch, f.errorCooldown, f.log.WithField("group", groupID.String()))
	mgr.SetMetrics(f.metrics)
	mgr.SetNodeRateLimiter(f.nodeLimit)
	if err := mgr.Resolve(ctx); err != nil {
		return nil, fmt.Errorf("runtime: resolve swarm for group %s: %w", groupID.String(), err)
	}
	return mgr, nil
}

// storeAuthFactory builds the admin-or-member Auth variant for a group
// from whatever credential was previously stored for it under
// app_settings, keyed by group id. A group's secret key (when the
// account is an admin/creator) takes precedence over a stored
// subaccount credential, mirroring groupsupervisor.NewAuth's own
// precedence.
type storeAuthFactory struct {
	self *identity.Identity
	st   *store.Store
}

func (f *storeAuthFactory) ForGroup(groupID common.SessionID, membership cfgobject.GroupMembership) (groupsupervisor.Auth, error) {
	ctx := context.Background()

	var groupSecKey ed25519.PrivateKey
	if raw, ok, err := f.st.GetSetting(ctx, "group_seed:"+groupID.String()); err == nil && ok {
		if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == ed25519.PrivateKeySize {
			groupSecKey = decoded
		}
	}

	var authData []byte
	if raw, ok, err := f.st.GetSetting(ctx, "group_subaccount:"+groupID.String()); err == nil && ok {
		if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
			authData = decoded
		}
	}

	return groupsupervisor.NewAuth(f.self, groupSecKey, authData)
}

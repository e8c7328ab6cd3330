package groupsupervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/rpc"
	"github.com/montana2ab/swarmclient/pkg/watchable"
)

type fakeSwarmFactory struct{}

func (fakeSwarmFactory) ForGroup(ctx context.Context, groupID common.SessionID) (Caller, error) {
	return &perNamespaceCaller{served: make(map[int16]bool), messages: map[int16][]rpc.RetrieveResult{}}, nil
}

type fakeAuthFactory struct{}

func (fakeAuthFactory) ForGroup(groupID common.SessionID, membership cfgobject.GroupMembership) (Auth, error) {
	return noopAuth{}, nil
}

func TestSupervisor_StartsAndStopsSubtreesAsMembershipChanges(t *testing.T) {
	self := testSessionID(t, common.PrefixIndividual, 0xee)
	groupA := testSessionID(t, common.PrefixGroup, 0x11)
	groupB := testSessionID(t, common.PrefixGroup, 0x22)

	userGroups, err := cfgobject.NewUserGroups(nil)
	require.NoError(t, err)
	require.NoError(t, userGroups.SetMembership(cfgobject.GroupMembership{GroupID: groupA.String()}))

	changedVal := watchable.New(uint64(0))
	st := testStore(t)

	sup := NewSupervisor(self, userGroups, changedVal.Subscribe(), fakeSwarmFactory{}, fakeAuthFactory{}, st, 5*time.Millisecond, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	require.Eventually(t, func() bool {
		ids := sup.RunningGroupIDs()
		return len(ids) == 1 && ids[0] == groupA.String()
	}, time.Second, 5*time.Millisecond)

	// Add a second membership and signal the change.
	require.NoError(t, userGroups.SetMembership(cfgobject.GroupMembership{GroupID: groupB.String()}))
	changedVal.ModifyIfChanged(func(g *uint64) bool { *g++; return true })

	require.Eventually(t, func() bool {
		return len(sup.RunningGroupIDs()) == 2
	}, time.Second, 5*time.Millisecond)

	// Kick the account from group A; its subtree must stop.
	require.NoError(t, userGroups.SetMembership(cfgobject.GroupMembership{GroupID: groupA.String(), Kicked: true}))
	changedVal.ModifyIfChanged(func(g *uint64) bool { *g++; return true })

	require.Eventually(t, func() bool {
		ids := sup.RunningGroupIDs()
		return len(ids) == 1 && ids[0] == groupB.String()
	}, time.Second, 5*time.Millisecond)
}

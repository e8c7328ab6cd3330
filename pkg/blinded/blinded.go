// Package blinded derives and persists the per-community blinded id
// pair an account presents to SOGS servers instead of its real session
// id, re-running the derivation whenever the account's community list
// changes (spec.md §4.9).
package blinded

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/cryptoprovider"
	"github.com/montana2ab/swarmclient/pkg/store"
	"github.com/montana2ab/swarmclient/pkg/watchable"
)

// settingKeyPrefix namespaces blinded-id app settings from the rest of
// the key space app_settings also holds.
const settingKeyPrefix = "blinded_ids:"

// storedPair is the JSON shape persisted under one community's
// setting key.
type storedPair struct {
	Primary   string `json:"primary"`   // hex, 15-prefixed session id
	Secondary string `json:"secondary"` // hex, 15-prefixed session id
}

// Deriver watches an account's UserGroups config for community
// changes and keeps the blinded id pair for each one up to date in
// app_settings.
type Deriver struct {
	self  common.SessionID
	store *store.Store
	log   *logrus.Entry
}

// NewDeriver builds a Deriver for self's session id.
func NewDeriver(self common.SessionID, st *store.Store, log *logrus.Entry) *Deriver {
	return &Deriver{self: self, store: st, log: log.WithField("component", "blinded_ids")}
}

// Run re-derives every community's blinded id pair once at startup,
// then again every time changed fires (the account's UserGroups
// syncer's Changed() subscriber), until ctx is cancelled.
func (d *Deriver) Run(ctx context.Context, userGroups *cfgobject.UserGroups, changed *watchable.Subscriber[uint64]) {
	d.reconcile(ctx, userGroups)
	for {
		_, ok := changed.Changed()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.reconcile(ctx, userGroups)
	}
}

func (d *Deriver) reconcile(ctx context.Context, userGroups *cfgobject.UserGroups) {
	for _, c := range userGroups.Communities() {
		if err := d.deriveAndStore(ctx, c); err != nil {
			d.log.WithError(err).WithField("community", c.Key()).Warn("blinded id derivation failed")
		}
	}
}

func (d *Deriver) deriveAndStore(ctx context.Context, c cfgobject.CommunityEntry) error {
	serverPub, err := hex.DecodeString(c.ServerPubKey)
	if err != nil {
		return fmt.Errorf("blinded: community %s: bad server pubkey: %w", c.Key(), err)
	}

	ids, err := cryptoprovider.DeriveBlindedIDs(d.self.PubKeyBytes(), serverPub)
	if err != nil {
		return fmt.Errorf("blinded: community %s: derive: %w", c.Key(), err)
	}

	primary := common.NewSessionID(common.PrefixBlinded, ids.Primary)
	secondary := common.NewSessionID(common.PrefixBlinded, ids.Secondary)

	raw, err := json.Marshal(storedPair{Primary: primary.String(), Secondary: secondary.String()})
	if err != nil {
		return fmt.Errorf("blinded: community %s: encode: %w", c.Key(), err)
	}

	return d.store.SetSetting(ctx, settingKeyPrefix+c.Key(), string(raw))
}

// Load returns the previously derived blinded id pair for the
// community keyed by communityKey ("<base-url>/<room>"), or ok=false
// if it has never been derived.
func Load(ctx context.Context, st *store.Store, communityKey string) (primary, secondary common.SessionID, ok bool, err error) {
	raw, found, err := st.GetSetting(ctx, settingKeyPrefix+communityKey)
	if err != nil || !found {
		return common.SessionID{}, common.SessionID{}, false, err
	}
	var pair storedPair
	if err := json.Unmarshal([]byte(raw), &pair); err != nil {
		return common.SessionID{}, common.SessionID{}, false, fmt.Errorf("blinded: %s: decode: %w", communityKey, err)
	}
	primary, err = common.ParseSessionID(pair.Primary)
	if err != nil {
		return common.SessionID{}, common.SessionID{}, false, err
	}
	secondary, err = common.ParseSessionID(pair.Secondary)
	if err != nil {
		return common.SessionID{}, common.SessionID{}, false, err
	}
	return primary, secondary, true, nil
}

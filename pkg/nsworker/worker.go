// Package nsworker polls one namespace for new messages and streams
// them out in ascending created order, the unit of work the config
// and message sync layers are built on top of (spec.md §4.7).
package nsworker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/broadcast"
	"github.com/montana2ab/swarmclient/pkg/clockutil"
	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/rpc"
	"github.com/montana2ab/swarmclient/pkg/store"
)

// Caller is the capability a Worker needs to issue a retrieve call.
// Implemented by the swarm manager (directly, or via the batch
// coordinator) so this package never depends on transport directly.
type Caller interface {
	Call(method string, params any) (result []byte, err error)
}

// Signer produces the authenticated-retrieve fields for one namespace
// poll. The account's own identity signs its own config/message
// namespaces directly (see IdentitySigner); a group subtree's admin or
// member auth variant signs a group's namespaces instead (spec.md
// §4.7), which is why this is an interface rather than a concrete
// *identity.Identity field.
type Signer interface {
	SignRetrieve(ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519, subaccount, subaccountSig string)
}

// IdentitySigner adapts an account identity to Signer for the
// account's own namespaces, where no subaccount credential applies.
type IdentitySigner struct{ ID *identity.Identity }

func (s IdentitySigner) SignRetrieve(ns namespace.Namespace, timestampMillis int64) (signature, pubKeyEd25519, subaccount, subaccountSig string) {
	sig, pub := rpc.SignRetrieve(s.ID, ns, timestampMillis)
	return sig, pub, "", ""
}

// Message is one decoded, still-encrypted entry delivered to a
// Worker's output channel. Namespace workers don't decrypt — that is
// messagesync's job — they only order and deliver.
type Message struct {
	Hash    string
	Created int64
	Data    []byte
}

// Worker polls one (pubkey, namespace) pair on an interval, advancing
// a persisted cursor and emitting newly-seen messages in ascending
// created order over a bounded channel.
type Worker struct {
	pubKeyHex string
	ns        namespace.Namespace
	signer    Signer
	caller    Caller
	store     *store.Store
	interval  time.Duration
	wake      *broadcast.Receiver[struct{}]
	clock     *clockutil.Source
	log       *logrus.Entry

	out chan Message
}

// SetClock attaches a calibrated clock source for signing timestamps
// and for feeding back the swarm's own clock from retrieve responses.
// Optional; a nil clock (the default) falls back to the local wall
// clock with no calibration. Call it before Run.
func (w *Worker) SetClock(clock *clockutil.Source) { w.clock = clock }

func (w *Worker) now() int64 {
	if w.clock == nil {
		return time.Now().UnixMilli()
	}
	return int64(w.clock.Now().AsMillis())
}

// New builds a Worker. wake, if non-nil, lets another component (e.g.
// a just-completed push) trigger an immediate poll instead of waiting
// out the interval. signer may be nil only for namespaces that never
// require signing (namespace.Default).
func New(pubKeyHex string, ns namespace.Namespace, signer Signer, caller Caller, st *store.Store, interval time.Duration, wake *broadcast.Receiver[struct{}], log *logrus.Entry) *Worker {
	return &Worker{
		pubKeyHex: pubKeyHex,
		ns:        ns,
		signer:    signer,
		caller:    caller,
		store:     st,
		interval:  interval,
		wake:      wake,
		log:       log.WithField("namespace", ns.String()),
		out:       make(chan Message, 32),
	}
}

// Output returns the channel new messages are delivered on. It closes
// when Run returns.
func (w *Worker) Output() <-chan Message { return w.out }

// Run polls until ctx is cancelled, then closes Output. Each iteration
// advances the persisted retrieve cursor only after every message of
// its batch has been handed to Output; it does not wait for the
// consumer to persist those messages.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.out)

	key := w.cursorKey()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-w.wakeChan():
		}

		if err := w.pollOnce(ctx, key); err != nil {
			w.log.WithError(err).Warn("namespace poll failed")
		}
		timer.Reset(w.interval)
	}
}

func (w *Worker) wakeChan() <-chan struct{} {
	if w.wake == nil {
		return nil
	}
	return w.wake.C()
}

func (w *Worker) cursorKey() string {
	return w.pubKeyHex + "/" + w.ns.String()
}

func (w *Worker) pollOnce(ctx context.Context, cursorKey string) error {
	state, err := w.store.LoadRetrieveState(ctx, cursorKey)
	if err != nil {
		return err
	}

	req := rpc.RetrieveRequest{
		PubKey:    w.pubKeyHex,
		Namespace: int16(w.ns),
		LastHash:  state.LastHash,
	}
	if w.ns.RequiresSignature() {
		ts := w.now()
		sig, pub, subaccount, subaccountSig := w.signer.SignRetrieve(w.ns, ts)
		req.Timestamp = ts
		req.Signature = sig
		req.PubKeyEd25519 = pub
		req.Subaccount = subaccount
		req.SubaccountSig = subaccountSig
	}

	respBytes, err := w.caller.Call("retrieve", req)
	if err != nil {
		return err
	}

	var resp rpc.RetrieveResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return err
	}
	if w.clock != nil && resp.Timestamp > 0 {
		w.clock.SubmitCalibration(clockutil.Timestamp(resp.Timestamp), time.Now())
	}
	if len(resp.Messages) == 0 {
		return nil
	}

	ordered := sortByCreated(resp.Messages)

	maxCreated := state.LastCreated
	lastHash := state.LastHash
	for _, m := range ordered {
		data, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil {
			w.log.WithError(err).Warn("dropping message with undecodable payload")
			continue
		}
		select {
		case w.out <- Message{Hash: m.Hash, Created: m.Created, Data: data}:
		case <-ctx.Done():
			return nil
		}
		if m.Created > maxCreated {
			maxCreated = m.Created
		}
		lastHash = m.Hash
	}

	return w.store.SaveRetrieveState(ctx, cursorKey, store.RetrieveState{LastHash: lastHash, LastCreated: maxCreated})
}

func sortByCreated(msgs []rpc.RetrieveResult) []rpc.RetrieveResult {
	out := append([]rpc.RetrieveResult(nil), msgs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Created > out[j].Created; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Package swarmmgr resolves and maintains the working set of service
// nodes responsible for one account's pubkey (its "swarm"), and
// dispatches RPC calls to it with per-node retry.
package swarmmgr

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/middleware"
	"github.com/montana2ab/swarmclient/pkg/swarmerr"
	"github.com/montana2ab/swarmclient/pkg/watchable"
)

// State is the swarm manager's resolution state.
type State int

const (
	// StateInit means the swarm has never been successfully resolved.
	StateInit State = iota
	// StateError means the last resolution or every node in the working
	// set failed; a cooldown is in effect.
	StateError
	// StateReady means at least one node in the working set is usable.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateError:
		return "Error"
	case StateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

type bootstrapSource interface {
	FetchServiceNodes(ctx context.Context, limit int) ([]common.ServiceNode, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, destination common.NodeAddress, payload []byte) ([]byte, error)
}

// MetricsRecorder receives swarm resolution and dispatch outcomes for
// observability. A Manager with no recorder set simply skips these
// calls, so callers that don't care about metrics pay nothing for it.
type MetricsRecorder interface {
	RecordResolution(outcome string)
	RecordOnionRequest(destination string)
	RecordDispatchRetry()
	RecordDispatchFailure(kind string)
}

// Manager owns the working node set for one pubkey and the state
// observers watch for readiness.
type Manager struct {
	pubKeyHex     string
	bootstrap     bootstrapSource
	transport     dispatcher
	errorCooldown time.Duration
	log           *logrus.Entry

	mu       sync.Mutex
	working  []common.ServiceNode
	cooldown time.Time

	state     *watchable.Value[State]
	metrics   MetricsRecorder
	nodeLimit *middleware.NodeRateLimiter
}

// SetMetrics attaches a MetricsRecorder. Optional; call it before
// Resolve/DispatchWithRetry run concurrently with anything that reads
// m.metrics, since it is not itself synchronized.
func (m *Manager) SetMetrics(rec MetricsRecorder) { m.metrics = rec }

// SetNodeRateLimiter attaches a per-node outbound dispatch limiter so a
// single flaky node under retry can't be hammered faster than it can
// answer. Optional; call it before Resolve/DispatchWithRetry run
// concurrently with anything that reads m.nodeLimit, since it is not
// itself synchronized.
func (m *Manager) SetNodeRateLimiter(rl *middleware.NodeRateLimiter) { m.nodeLimit = rl }

func NewManager(pubKeyHex string, bootstrap bootstrapSource, t dispatcher, errorCooldown time.Duration, log *logrus.Entry) *Manager {
	return &Manager{
		pubKeyHex:     pubKeyHex,
		bootstrap:     bootstrap,
		transport:     t,
		errorCooldown: errorCooldown,
		log:           log,
		state:         watchable.New(StateInit),
	}
}

// State returns a subscriber for the manager's resolution state.
func (m *Manager) State() *watchable.Subscriber[State] {
	return m.state.Subscribe()
}

type getSnodesForPubkeyRequest struct {
	Method string `json:"method"`
	Params struct {
		Pubkey string `json:"pubkey"`
	} `json:"params"`
}

type getSnodesForPubkeyResponse struct {
	Snodes []struct {
		IP            string `json:"ip"`
		Port          uint16 `json:"port"`
		PubkeyEd25519 string `json:"pubkey_ed25519"`
		PubkeyX25519  string `json:"pubkey_x25519"`
	} `json:"snodes"`
}

// Resolve fetches a fresh working set via get_snodes_for_pubkey,
// bootstrapping the call through the seed node pool since no swarm is
// known yet. It replaces whatever working set was cached.
func (m *Manager) Resolve(ctx context.Context) error {
	pool, err := m.bootstrap.FetchServiceNodes(ctx, 1)
	if err != nil {
		m.enterError()
		m.recordResolution("bootstrap_failed")
		return err
	}
	if len(pool) == 0 {
		m.enterError()
		m.recordResolution("bootstrap_empty")
		return swarmerr.New(swarmerr.KindNoUsableNodes, nil)
	}

	reqBody := getSnodesForPubkeyRequest{Method: "get_snodes_for_pubkey"}
	reqBody.Params.Pubkey = m.pubKeyHex
	payload, err := json.Marshal(reqBody)
	if err != nil {
		m.enterError()
		return swarmerr.New(swarmerr.KindDecode, err)
	}

	dest := common.NodeAddressFromServiceNode(pool[0])
	m.recordOnionRequest("bootstrap")
	respBytes, err := m.transport.Dispatch(ctx, dest, payload)
	if err != nil {
		m.enterError()
		m.recordResolution("dispatch_failed")
		return err
	}

	var parsed getSnodesForPubkeyResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		m.enterError()
		m.recordResolution("decode_failed")
		return swarmerr.New(swarmerr.KindDecode, err)
	}

	nodes := make([]common.ServiceNode, 0, len(parsed.Snodes))
	for _, s := range parsed.Snodes {
		ip, err := common.NewPublicIPv4(s.IP)
		if err != nil {
			continue
		}
		nodes = append(nodes, common.ServiceNode{IP: ip, StoragePort: s.Port})
	}
	if len(nodes) == 0 {
		m.enterError()
		m.recordResolution("empty_swarm")
		return swarmerr.New(swarmerr.KindNoUsableNodes, nil)
	}

	m.mu.Lock()
	m.working = nodes
	m.mu.Unlock()
	m.state.Set(StateReady)
	m.recordResolution("ready")
	return nil
}

// DispatchWithRetry dispatches payload to a random node from the
// working set, removing any node that fails before retrying against
// another. It gives up with swarmerr.KindNoUsableNodes once the
// working set is exhausted, entering the error cooldown. A
// non-retryable error is returned as-is without trying another node.
func (m *Manager) DispatchWithRetry(ctx context.Context, payload []byte) ([]byte, error) {
	for {
		node, ok := m.pickNode()
		if !ok {
			m.enterError()
			m.recordDispatchFailure(swarmerr.KindNoUsableNodes.String())
			return nil, swarmerr.New(swarmerr.KindNoUsableNodes, nil)
		}

		dest := common.NodeAddressFromServiceNode(node)
		if m.nodeLimit != nil {
			if err := m.nodeLimit.Wait(ctx, dest.String()); err != nil {
				return nil, swarmerr.New(swarmerr.KindTimeout, err)
			}
		}
		m.recordOnionRequest("storage")
		resp, err := m.transport.Dispatch(ctx, dest, payload)
		if err == nil {
			m.state.Set(StateReady)
			return resp, nil
		}

		m.log.WithError(err).WithField("node", dest.String()).Warn("swarm node dispatch failed, removing from working set")
		m.removeNode(node)
		if !swarmerr.Retryable(err) {
			m.recordDispatchFailure("non_retryable")
			return nil, err
		}
		m.recordDispatchRetry()
	}
}

type rpcEnvelope struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Call implements the single-RPC CallSource surface that namespace
// workers, config sync and message sync build on: it wraps method and
// params in the swarm's onion JSON-RPC envelope and dispatches it with
// retry, so those packages never depend on swarmmgr or transport
// directly.
func (m *Manager) Call(method string, params any) ([]byte, error) {
	payload, err := json.Marshal(rpcEnvelope{Method: method, Params: params})
	if err != nil {
		return nil, swarmerr.New(swarmerr.KindDecode, err)
	}
	return m.DispatchWithRetry(context.Background(), payload)
}

func (m *Manager) recordResolution(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordResolution(outcome)
	}
}

func (m *Manager) recordOnionRequest(destination string) {
	if m.metrics != nil {
		m.metrics.RecordOnionRequest(destination)
	}
}

func (m *Manager) recordDispatchRetry() {
	if m.metrics != nil {
		m.metrics.RecordDispatchRetry()
	}
}

func (m *Manager) recordDispatchFailure(kind string) {
	if m.metrics != nil {
		m.metrics.RecordDispatchFailure(kind)
	}
}

func (m *Manager) enterError() {
	m.mu.Lock()
	m.cooldown = time.Now().Add(m.errorCooldown)
	m.mu.Unlock()
	m.state.Set(StateError)
}

func (m *Manager) pickNode() (common.ServiceNode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Now().Before(m.cooldown) || len(m.working) == 0 {
		return common.ServiceNode{}, false
	}
	idx, err := randIndex(len(m.working))
	if err != nil {
		return m.working[0], true
	}
	return m.working[idx], true
}

func (m *Manager) removeNode(target common.ServiceNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.working[:0]
	for _, n := range m.working {
		if !n.Equal(target) {
			out = append(out, n)
		}
	}
	m.working = out
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/cryptoprovider"
	"github.com/montana2ab/swarmclient/pkg/swarmerr"
	"github.com/montana2ab/swarmclient/pkg/watchable"
)

// Client is the onion transport: it owns the cached path, the seed
// client used to (re)build it, and the HTTP client used to dispatch
// onion-wrapped requests to the path's entry node.
type Client struct {
	seeds         *SeedClient
	path          *pathCache
	httpClient    *http.Client
	errorCooldown time.Duration
	state         *watchable.Value[State]
	log           *logrus.Entry
}

func NewClient(cfg common.Config, log *logrus.Entry) *Client {
	transport := &http.Transport{}
	if cfg.Network.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		seeds:         NewSeedClient(cfg.Network.SeedURLs, cfg.Network.RequestTimeout, cfg.Network.InsecureTLS),
		path:          newPathCache(cfg.Network.PathTTL),
		httpClient:    &http.Client{Timeout: cfg.Network.RequestTimeout, Transport: transport},
		errorCooldown: cfg.Network.ErrorCooldown,
		state:         watchable.New(StateIdle),
		log:           log,
	}
}

// State returns a subscriber observing the transport's connectivity
// state, for callers that want to wait for Connected rather than poll.
func (c *Client) State() *watchable.Subscriber[State] {
	return c.state.Subscribe()
}

// Dispatch builds a fresh (or reuses a cached) 3-hop onion path,
// wraps payload for destination, POSTs it to the path's entry node,
// and decrypts the response. A transport-level failure invalidates
// the cached path and enters the error cooldown before returning.
func (c *Client) Dispatch(ctx context.Context, destination common.NodeAddress, payload []byte) ([]byte, error) {
	c.state.Set(StateConnecting)

	path, err := acquirePath(ctx, c.path, c.seeds)
	if err != nil {
		c.state.Set(StateError)
		return nil, err
	}

	hops := make([]cryptoprovider.OnionHop, len(path))
	for i, n := range path {
		hops[i] = serviceNodeToHop(n)
	}
	destHop, err := nodeAddressToHop(destination)
	if err != nil {
		c.state.Set(StateError)
		return nil, swarmerr.New(swarmerr.KindDecode, err)
	}

	wire, ephPub, ephSec, err := cryptoprovider.BuildOnionRequest(hops, destHop, payload)
	if err != nil {
		c.state.Set(StateError)
		return nil, swarmerr.New(swarmerr.KindOnionDecrypt, err)
	}

	entry := path[0]
	url := fmt.Sprintf("https://%s:%d/onion_req/v2", entry.IP.String(), entry.StoragePort)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wire))
	if err != nil {
		c.state.Set(StateError)
		return nil, swarmerr.New(swarmerr.KindTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.path.invalidate(c.errorCooldown)
		c.state.Set(StateError)
		return nil, swarmerr.New(swarmerr.KindTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.path.invalidate(c.errorCooldown)
		c.state.Set(StateError)
		return nil, swarmerr.New(swarmerr.KindTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.path.invalidate(c.errorCooldown)
		c.state.Set(StateError)
		return nil, swarmerr.NewStatus(swarmerr.KindTransport, resp.StatusCode, fmt.Errorf("onion_req: status %d", resp.StatusCode))
	}

	plaintext, err := cryptoprovider.DecryptOnionResponse(respBody, destHop.X25519PubKey, ephPub, ephSec)
	if err != nil {
		c.log.WithError(err).Warn("onion response decryption failed")
		c.path.invalidate(c.errorCooldown)
		c.state.Set(StateError)
		return nil, swarmerr.New(swarmerr.KindOnionDecrypt, err)
	}

	c.state.Set(StateConnected)
	return plaintext, nil
}

func serviceNodeToHop(n common.ServiceNode) cryptoprovider.OnionHop {
	x25519 := n.X25519PubKey
	if len(x25519) == 0 {
		x25519, _ = cryptoprovider.Ed25519PublicKeyToX25519(n.Ed25519PubKey)
	}
	return cryptoprovider.OnionHop{
		Host:          n.IP.String(),
		Port:          n.StoragePort,
		Ed25519PubKey: n.Ed25519PubKey,
		X25519PubKey:  x25519,
	}
}

func nodeAddressToHop(a common.NodeAddress) (cryptoprovider.OnionHop, error) {
	x25519 := a.X25519PubKey
	if len(x25519) == 0 {
		var err error
		x25519, err = cryptoprovider.Ed25519PublicKeyToX25519(a.Ed25519PubKey)
		if err != nil {
			return cryptoprovider.OnionHop{}, err
		}
	}
	return cryptoprovider.OnionHop{
		Host:          a.Host,
		Port:          a.Port,
		Ed25519PubKey: a.Ed25519PubKey,
		X25519PubKey:  x25519,
	}, nil
}

package transport

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/swarmerr"
)

// SeedClient talks to the bootstrap seed nodes that answer
// get_n_service_nodes — the one call the transport makes outside of an
// onion-wrapped request, since there is no path yet to wrap it in.
type SeedClient struct {
	httpClient *http.Client
	seedURLs   []string
}

func NewSeedClient(seedURLs []string, requestTimeout time.Duration, insecureTLS bool) *SeedClient {
	transport := &http.Transport{}
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &SeedClient{
		httpClient: &http.Client{Timeout: requestTimeout, Transport: transport},
		seedURLs:   seedURLs,
	}
}

type getServiceNodesRequest struct {
	Method string                 `json:"method"`
	Params getServiceNodesParams `json:"params"`
}

type getServiceNodesParams struct {
	ActiveOnly bool     `json:"active_only"`
	Limit      int      `json:"limit"`
	Fields     map[string]bool `json:"fields"`
}

type serviceNodeWire struct {
	IP            string `json:"public_ip"`
	StoragePort   uint16 `json:"storage_port"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	PubkeyX25519  string `json:"pubkey_x25519"`
}

type getServiceNodesResponse struct {
	Result struct {
		ServiceNodeStates []serviceNodeWire `json:"service_node_states"`
	} `json:"result"`
}

// FetchServiceNodes asks one of the configured seed URLs for up to
// limit active service nodes, trying each seed in order until one
// answers. It returns swarmerr.KindTransport on total failure and
// swarmerr.KindDecode on a malformed response.
func (c *SeedClient) FetchServiceNodes(ctx context.Context, limit int) ([]common.ServiceNode, error) {
	if len(c.seedURLs) == 0 {
		return nil, swarmerr.New(swarmerr.KindNoUsableNodes, fmt.Errorf("transport: no seed urls configured"))
	}

	var lastErr error
	for _, seed := range c.seedURLs {
		nodes, err := c.fetchFrom(ctx, seed, limit)
		if err == nil {
			return nodes, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *SeedClient) fetchFrom(ctx context.Context, seedURL string, limit int) ([]common.ServiceNode, error) {
	reqBody := getServiceNodesRequest{
		Method: "get_n_service_nodes",
		Params: getServiceNodesParams{
			ActiveOnly: true,
			Limit:      limit,
			Fields: map[string]bool{
				"public_ip":       true,
				"storage_port":    true,
				"pubkey_ed25519":  true,
				"pubkey_x25519":   true,
			},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, swarmerr.New(swarmerr.KindDecode, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, seedURL+"/json_rpc", bytes.NewReader(payload))
	if err != nil {
		return nil, swarmerr.New(swarmerr.KindTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, swarmerr.New(swarmerr.KindTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, swarmerr.New(swarmerr.KindTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, swarmerr.NewStatus(swarmerr.KindTransport, resp.StatusCode, fmt.Errorf("seed %s: status %d", seedURL, resp.StatusCode))
	}

	var parsed getServiceNodesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, swarmerr.New(swarmerr.KindDecode, err)
	}

	nodes := make([]common.ServiceNode, 0, len(parsed.Result.ServiceNodeStates))
	for _, w := range parsed.Result.ServiceNodeStates {
		ip, err := common.NewPublicIPv4(w.IP)
		if err != nil {
			continue // skip nodes with non-public/unroutable addresses
		}
		edPub, err := decodeKey(w.PubkeyEd25519)
		if err != nil || len(edPub) != ed25519.PublicKeySize {
			continue
		}
		xPub, err := decodeKey(w.PubkeyX25519)
		if err != nil || len(xPub) != 32 {
			continue
		}
		nodes = append(nodes, common.ServiceNode{
			IP:            ip,
			StoragePort:   w.StoragePort,
			Ed25519PubKey: ed25519.PublicKey(edPub),
			X25519PubKey:  xPub,
		})
	}
	return nodes, nil
}

func decodeKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/peer"
)

const baseURL = "http://%s/v1/node"

// HTTPTransport talks to other nodes using the private JSON API. This
// implements the Transport interface.
type HTTPTransport struct {
	client http.Client
}

// NewHTTPTransport constructs a transport where every call is bounded by
// the specified timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: http.Client{Timeout: timeout},
	}
}

// Status asks the peer for its status.
func (t *HTTPTransport) Status(ctx context.Context, host string) (peer.PeerStatus, error) {
	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, host))

	var ps peer.PeerStatus
	if err := t.send(ctx, http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	return ps, nil
}

// Hello introduces this node to the peer so the peer connects back.
func (t *HTTPTransport) Hello(ctx context.Context, host string, from peer.PeerStatus) error {
	url := fmt.Sprintf("%s/hello", fmt.Sprintf(baseURL, host))

	return t.send(ctx, http.MethodPost, url, from, nil)
}

// Blocks asks the peer for the blocks from the specified number to its head.
func (t *HTTPTransport) Blocks(ctx context.Context, host string, from uint64) ([]database.BlockData, error) {
	url := fmt.Sprintf("%s/block/list/%d/latest", fmt.Sprintf(baseURL, host), from)

	var blocks []database.BlockData
	if err := t.send(ctx, http.MethodGet, url, nil, &blocks); err != nil {
		return nil, err
	}

	return blocks, nil
}

// Mempool asks the peer for the transactions in its mempool.
func (t *HTTPTransport) Mempool(ctx context.Context, host string) ([]database.SignedTx, error) {
	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, host))

	var mempool []database.SignedTx
	if err := t.send(ctx, http.MethodGet, url, nil, &mempool); err != nil {
		return nil, err
	}

	return mempool, nil
}

// SendTxs relays a batch of transactions to the peer.
func (t *HTTPTransport) SendTxs(ctx context.Context, host string, batch TxBatch) error {
	url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, host))

	return t.send(ctx, http.MethodPost, url, batch, nil)
}

// SendBlock relays a block to the peer.
func (t *HTTPTransport) SendBlock(ctx context.Context, host string, proposal BlockProposal) error {
	url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, host))

	return t.send(ctx, http.MethodPost, url, proposal, nil)
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func (t *HTTPTransport) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}

// Package nettest provides an in-memory network so several nodes can talk
// to each other inside a single test binary.
package nettest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/peer"
	"github.com/ardanlabs/signchain/foundation/blockchain/state"
)

// ErrUnreachable is returned when the called host can't be reached.
var ErrUnreachable = errors.New("host unreachable")

// Network routes calls between the nodes registered with it. Every value
// crosses the network as JSON so no memory is shared between nodes.
type Network struct {
	mu    sync.RWMutex
	nodes map[string]*state.State
	cut   map[link]bool
}

type link struct {
	a string
	b string
}

func newLink(a, b string) link {
	if a > b {
		a, b = b, a
	}
	return link{a: a, b: b}
}

// New constructs an empty network.
func New() *Network {
	return &Network{
		nodes: make(map[string]*state.State),
		cut:   make(map[link]bool),
	}
}

// Transport returns the transport the node on the host uses to make calls.
func (n *Network) Transport(host string) state.Transport {
	return &endpoint{net: n, from: host}
}

// Register makes the node reachable on its host.
func (n *Network) Register(st *state.State) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nodes[st.Host()] = st
}

// Unregister makes the host unreachable.
func (n *Network) Unregister(host string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.nodes, host)
}

// Cut stops all calls between the two hosts.
func (n *Network) Cut(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cut[newLink(a, b)] = true
}

// Heal restores calls between the two hosts.
func (n *Network) Heal(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.cut, newLink(a, b))
}

// route finds the node the call is addressed to.
func (n *Network) route(ctx context.Context, from string, to string) (*state.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.cut[newLink(from, to)] {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrUnreachable)
	}

	st, exists := n.nodes[to]
	if !exists {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrUnreachable)
	}

	return st, nil
}

// =============================================================================

// endpoint implements the state.Transport interface for a single host.
type endpoint struct {
	net  *Network
	from string
}

// Status asks the peer for its status.
func (e *endpoint) Status(ctx context.Context, host string) (peer.PeerStatus, error) {
	st, err := e.net.route(ctx, e.from, host)
	if err != nil {
		return peer.PeerStatus{}, err
	}

	return wire(st.PeerStatus())
}

// Hello introduces this node to the peer.
func (e *endpoint) Hello(ctx context.Context, host string, from peer.PeerStatus) error {
	st, err := e.net.route(ctx, e.from, host)
	if err != nil {
		return err
	}

	status, err := wire(from)
	if err != nil {
		return err
	}

	return st.AcceptHello(status)
}

// Blocks asks the peer for the blocks from the specified number to its head.
func (e *endpoint) Blocks(ctx context.Context, host string, from uint64) ([]database.BlockData, error) {
	st, err := e.net.route(ctx, e.from, host)
	if err != nil {
		return nil, err
	}

	blocks := st.QueryBlocksByNumber(from, state.QueryLastest)

	out := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		out[i] = database.NewBlockData(block)
	}

	return wire(out)
}

// Mempool asks the peer for the transactions in its mempool.
func (e *endpoint) Mempool(ctx context.Context, host string) ([]database.SignedTx, error) {
	st, err := e.net.route(ctx, e.from, host)
	if err != nil {
		return nil, err
	}

	return wire(st.Mempool())
}

// SendTxs relays a batch of transactions to the peer.
func (e *endpoint) SendTxs(ctx context.Context, host string, batch state.TxBatch) error {
	st, err := e.net.route(ctx, e.from, host)
	if err != nil {
		return err
	}

	batch, err = wire(batch)
	if err != nil {
		return err
	}

	st.UpsertNodeTransactions(batch)

	return nil
}

// SendBlock relays a block to the peer.
func (e *endpoint) SendBlock(ctx context.Context, host string, proposal state.BlockProposal) error {
	st, err := e.net.route(ctx, e.from, host)
	if err != nil {
		return err
	}

	proposal, err = wire(proposal)
	if err != nil {
		return err
	}

	return st.ProcessProposedBlock(proposal.From, proposal.Block)
}

// =============================================================================

// wire copies the value through its JSON encoding.
func wire[T any](v T) (T, error) {
	var out T

	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}

	return out, nil
}

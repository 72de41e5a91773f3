// Package peer maintains the peer related information such as the set
// of known peers, the state of the connection to each of them and what has
// already been exchanged with them.
package peer

import (
	"sort"
	"sync"
)

// Peer represents information about a Node in the network.
type Peer struct {
	Host string
}

// New contructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status
// of any given peer.
type PeerStatus struct {
	Host              string `json:"host"`
	ChainID           uint16 `json:"chain_id"`
	GenesisTxID       string `json:"genesis_txid"`
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	MempoolCount      int    `json:"mempool_count"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known
// peers and the connection to each of them.
type PeerSet struct {
	mu  sync.RWMutex
	set map[string]*Conn
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[string]*Conn),
	}
}

// Add adds a new node to the set. The connection for the peer is returned
// along with whether it was created by this call.
func (ps *PeerSet) Add(peer Peer) (*Conn, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	conn, exists := ps.set[peer.Host]
	if exists {
		return conn, false
	}

	conn = NewConn(peer)
	ps.set[peer.Host] = conn

	return conn, true
}

// Get returns the connection for the specified host.
func (ps *PeerSet) Get(host string) (*Conn, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	conn, exists := ps.set[host]
	return conn, exists
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer.Host)
}

// Copy returns a list of the known peers excluding the specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for _, conn := range ps.set {
		if !conn.Peer.Match(host) {
			peers = append(peers, conn.Peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Host < peers[j].Host })

	return peers
}

// Conns returns every connection ordered by host.
func (ps *PeerSet) Conns() []*Conn {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	conns := make([]*Conn, 0, len(ps.set))
	for _, conn := range ps.set {
		conns = append(conns, conn)
	}

	sort.Slice(conns, func(i, j int) bool { return conns[i].Peer.Host < conns[j].Peer.Host })

	return conns
}

// Synced returns the connections that completed the handshake.
func (ps *PeerSet) Synced() []*Conn {
	var conns []*Conn
	for _, conn := range ps.Conns() {
		if conn.IsSynced() {
			conns = append(conns, conn)
		}
	}

	return conns
}

// CountSynced returns the number of connections that completed the
// handshake.
func (ps *PeerSet) CountSynced() int {
	return len(ps.Synced())
}

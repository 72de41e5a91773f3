package state

import (
	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/signchain/foundation/blockchain/peer"
)

// QueryLastest represents to query the latest block in the chain.
const QueryLastest = ^uint64(0) >> 1

// Info is the summary of the node's view of the chain.
type Info struct {
	Connections int    `json:"connections"`
	Blocks      uint64 `json:"blocks"`
	LastBlock   string `json:"lastblock"`
	ChainID     uint16 `json:"chain_id"`
	Signer      bool   `json:"signer"`
	Mempool     int    `json:"mempool"`
}

// SinceBlock is the activity of the watched addresses after a block.
type SinceBlock struct {
	Transactions []database.WalletTx `json:"transactions"`
	LastBlock    string              `json:"lastblock"`
}

// =============================================================================

// Host returns the host this node is reachable on.
func (s *State) Host() string {
	return s.host
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// LatestBlock returns the head of the chain.
func (s *State) LatestBlock() database.Block {
	return s.db.Head()
}

// Info returns the summary of the node's view of the chain.
func (s *State) Info() Info {
	head := s.db.Head()

	return Info{
		Connections: s.knownPeers.CountSynced(),
		Blocks:      head.Header.Number,
		LastBlock:   head.Hash(),
		ChainID:     s.genesis.ChainID,
		Signer:      len(s.authorizedKeys()) >= s.policy.Required(),
		Mempool:     s.mempool.Count(),
	}
}

// Mempool returns a copy of the mempool in admission order.
func (s *State) Mempool() []database.SignedTx {
	return s.mempool.Snapshot()
}

// MempoolIDs returns the ids in the mempool in admission order.
func (s *State) MempoolIDs() []string {
	return s.mempool.IDs()
}

// ListSinceBlock returns the activity of the watched addresses in the blocks
// after the specified hash. An empty hash lists from genesis.
func (s *State) ListSinceBlock(hash string) (SinceBlock, error) {
	var from uint64
	if hash != "" {
		num, err := s.db.BlockNumber(hash)
		if err != nil {
			return SinceBlock{}, err
		}
		from = num + 1
	}

	head := s.db.Head()

	txs, err := s.db.History(from)
	if err != nil {
		return SinceBlock{}, err
	}

	if txs == nil {
		txs = []database.WalletTx{}
	}

	return SinceBlock{Transactions: txs, LastBlock: head.Hash()}, nil
}

// ImportAddress watches the address so its outputs can be listed. The
// number of blocks that touched the address is returned.
func (s *State) ImportAddress(address string) (int, error) {
	accountID, err := database.ToAccountID(address)
	if err != nil {
		return 0, err
	}

	return s.db.Watch(accountID)
}

// ListUnspent returns the unspent outputs of the watched addresses.
func (s *State) ListUnspent(addresses ...string) ([]database.Unspent, error) {
	accountIDs := make([]database.AccountID, len(addresses))
	for i, address := range addresses {
		accountID, err := database.ToAccountID(address)
		if err != nil {
			return nil, err
		}
		accountIDs[i] = accountID
	}

	return s.db.Unspent(accountIDs...)
}

// Balance returns the sum of the unspent outputs of a watched address.
func (s *State) Balance(address string) (uint64, error) {
	accountID, err := database.ToAccountID(address)
	if err != nil {
		return 0, err
	}

	return s.db.Balance(accountID)
}

// QueryBlocksByNumber returns the set of blocks based on block numbers. This
// function reads the blockchain from storage.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	head := s.db.Head().Header.Number

	if from == QueryLastest {
		from = head
		to = from
	}
	if to == QueryLastest || to > head {
		to = head
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: getblock: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// PeerStatus returns the status this node reports to peers.
func (s *State) PeerStatus() peer.PeerStatus {
	head := s.db.Head()

	return peer.PeerStatus{
		Host:              s.host,
		ChainID:           s.genesis.ChainID,
		GenesisTxID:       s.db.GenesisTxID(),
		LatestBlockHash:   head.Hash(),
		LatestBlockNumber: head.Header.Number,
		MempoolCount:      s.mempool.Count(),
		KnownPeers:        s.knownPeers.Copy(s.host),
	}
}

// ConnStates returns the state of every known peer connection by host.
func (s *State) ConnStates() map[string]string {
	states := make(map[string]string)
	for _, conn := range s.knownPeers.Conns() {
		states[conn.Peer.Host] = conn.State()
	}

	return states
}

// KnownPeers retrieves a copy of the known peer list.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

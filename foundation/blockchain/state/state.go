// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/signchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/signchain/foundation/blockchain/peer"
	"github.com/ardanlabs/signchain/foundation/blockchain/signer"
	"github.com/ardanlabs/signchain/foundation/retry"
	"github.com/jellydator/ttlcache/v3"
)

// seenTTL is how long the id of a confirmed transaction is remembered.
const seenTTL = 10 * time.Minute

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for block and transaction sharing and for
// keeping peer connections alive.
type Worker interface {
	Shutdown()
	SignalShareTx()
	SignalShareBlock()
	SignalConnect(host string)
}

// Transport interface represents the behavior required to talk to another
// node. Every call names the host being called.
type Transport interface {
	Status(ctx context.Context, host string) (peer.PeerStatus, error)
	Hello(ctx context.Context, host string, from peer.PeerStatus) error
	Blocks(ctx context.Context, host string, from uint64) ([]database.BlockData, error)
	Mempool(ctx context.Context, host string) ([]database.SignedTx, error)
	SendTxs(ctx context.Context, host string, batch TxBatch) error
	SendBlock(ctx context.Context, host string, proposal BlockProposal) error
}

// TxBatch is the set of transactions one node relays to another.
type TxBatch struct {
	From string              `json:"from" validate:"required"`
	Txs  []database.SignedTx `json:"txs" validate:"required"`
}

// BlockProposal is a block one node relays to another.
type BlockProposal struct {
	From  string             `json:"from" validate:"required"`
	Block database.BlockData `json:"block"`
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Host          string
	Genesis       genesis.Genesis
	Storage       database.Serializer
	Policy        signer.Policy
	SignerKeys    []*ecdsa.PrivateKey
	KnownPeers    *peer.PeerSet
	Transport     Transport
	ConnectPolicy retry.Policy
	EvHandler     EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	host          string
	evHandler     EventHandler
	signerKeys    []*ecdsa.PrivateKey
	connectPolicy retry.Policy

	genesis    genesis.Genesis
	policy     signer.Policy
	knownPeers *peer.PeerSet
	transport  Transport
	mempool    *mempool.Mempool
	db         *database.Database
	seen       *ttlcache.Cache[string, struct{}]

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	// Without a policy the signer set comes straight from genesis.
	policy := cfg.Policy
	if policy == nil {
		set, err := signer.NewSet(cfg.Genesis.Signers, cfg.Genesis.Required())
		if err != nil {
			return nil, err
		}
		policy = set
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	connectPolicy := cfg.ConnectPolicy
	if connectPolicy.Attempts == 0 {
		connectPolicy = retry.DefaultPolicy
	}

	// Access the storage for the blockchain. Every stored block is replayed
	// through validation.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	seen := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](seenTTL),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go seen.Start()

	initMetrics()

	// Create the State to provide support for managing the blockchain.
	state := State{
		host:          cfg.Host,
		evHandler:     ev,
		signerKeys:    cfg.SignerKeys,
		connectPolicy: connectPolicy,

		genesis:    cfg.Genesis,
		policy:     policy,
		knownPeers: knownPeers,
		transport:  cfg.Transport,
		mempool:    mempool.New(cfg.Genesis.ChainID),
		db:         db,
		seen:       seen,

		Worker: noopWorker{},
	}

	// The Worker set here does nothing. The call to worker.Run will assign
	// itself and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database file is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()
	s.seen.Stop()

	return nil
}

// Truncate resets the chain both on disk and in memory back to genesis.
func (s *State) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mempool.Truncate()
	s.seen.DeleteAll()

	return s.db.Reset()
}

// =============================================================================

// noopWorker stands in until a worker registers itself.
type noopWorker struct{}

func (noopWorker) Shutdown()            {}
func (noopWorker) SignalShareTx()       {}
func (noopWorker) SignalShareBlock()    {}
func (noopWorker) SignalConnect(string) {}

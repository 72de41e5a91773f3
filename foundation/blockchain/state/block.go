package state

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/signer"
	"github.com/jellydator/ttlcache/v3"
)

// GenerateBlock assembles every admissible mempool transaction into a new
// block sealed by the node's authorized keys and commits it. An empty
// mempool produces an empty block.
func (s *State) GenerateBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: GenerateBlock: started")
	defer s.evHandler("state: GenerateBlock: completed")

	if err := ctx.Err(); err != nil {
		return database.Block{}, err
	}

	block, err := s.generateBlock()
	if err != nil {
		s.evHandler("state: GenerateBlock: ERROR: %s", err)
		return database.Block{}, err
	}

	s.Worker.SignalShareBlock()

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain. A block that's
// already part of the chain is accepted without change.
func (s *State) ProcessProposedBlock(from string, blockData database.BlockData) error {
	s.evHandler("state: ProcessProposedBlock: started: from[%s]: blk[%d]: hash[%s]", from, blockData.Header.Number, blockData.Hash)
	defer s.evHandler("state: ProcessProposedBlock: completed: blk[%d]", blockData.Header.Number)

	block, err := database.ToBlock(blockData)
	if err != nil {
		return err
	}

	conn, hasConn := s.knownPeers.Get(from)

	// The same block can arrive from a push and a pull at the same time so
	// the check for a known block happens under the writer lock.
	s.mu.Lock()
	known := s.isKnown(block)
	if !known {
		err = s.validateCommit(block)
	}
	s.mu.Unlock()

	if err != nil {
		s.evHandler("state: ProcessProposedBlock: blk[%d]: rejected: %s", block.Header.Number, err)
		return err
	}

	if hasConn {
		conn.MarkBlock(block.Header.Number, block.Hash())
		conn.MarkTx(block.TxIDs()...)
	}

	if !known {
		s.Worker.SignalShareBlock()
	}

	return nil
}

// ValidateBlock checks the block against the signer policy and the ledger
// without applying it.
func (s *State) ValidateBlock(block database.Block) error {
	if err := s.policy.Verify(block); err != nil {
		return err
	}

	if !s.policy.Authorized(block.Header.ProducerID) {
		return fmt.Errorf("%w: producer %s", signer.ErrInvalidSignature, block.Header.ProducerID)
	}

	return s.db.Validate(block)
}

// =============================================================================

// generateBlock holds the writer lock for the whole of production so no
// admission can interleave.
func (s *State) generateBlock() (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.authorizedKeys()
	if len(keys) == 0 || len(keys) < s.policy.Required() {
		return database.Block{}, fmt.Errorf("%w: holding %d of %d required keys", signer.ErrNotAuthorized, len(keys), s.policy.Required())
	}

	head := s.db.Head()
	chainID := s.genesis.ChainID

	// Re-check every transaction in admission order against a view so the
	// block is valid even if the ledger moved since admission.
	view := database.NewView(s.db)
	var trans []database.SignedTx
	for _, tx := range s.mempool.Snapshot() {
		if err := view.Apply(chainID, tx, head.Header.Number+1); err != nil {
			s.evHandler("state: GenerateBlock: skip tx[%s]: %s", tx.ID(), err)
			continue
		}
		trans = append(trans, tx)
	}

	producerID := database.PublicKeyToAccountID(keys[0].PublicKey)
	block, err := database.NewBlock(producerID, chainID, head, trans)
	if err != nil {
		return database.Block{}, err
	}

	for _, key := range keys {
		if err := block.Seal(key); err != nil {
			return database.Block{}, err
		}
	}

	if err := s.validateCommit(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// validateCommit validates the block, appends it to the ledger and removes
// its transactions from the mempool. The caller must hold the writer lock.
func (s *State) validateCommit(block database.Block) error {
	if err := s.ValidateBlock(block); err != nil {
		return err
	}

	if err := s.db.Append(block); err != nil {
		return err
	}

	ids := block.TxIDs()
	for _, id := range ids {
		s.seen.Set(id, struct{}{}, ttlcache.DefaultTTL)
	}

	evicted := s.mempool.Evict(ids...)
	dropped := s.mempool.Revalidate(s.db)

	prometheusBlocksCommited.Inc()
	prometheusMempoolSize.Set(float64(s.mempool.Count()))

	s.evHandler("state: commit: blk[%d]: evicted[%d]: dropped[%d]", block.Header.Number, evicted, len(dropped))
	s.blockEvent(block)

	return nil
}

// isKnown reports whether the block is already part of the chain.
func (s *State) isKnown(block database.Block) bool {
	num, err := s.db.BlockNumber(block.Hash())
	return err == nil && num == block.Header.Number
}

// authorizedKeys returns the keys held by the node that are members of the
// signer set.
func (s *State) authorizedKeys() []*ecdsa.PrivateKey {
	var keys []*ecdsa.PrivateKey
	for _, key := range s.signerKeys {
		if s.policy.Authorized(database.PublicKeyToAccountID(key.PublicKey)) {
			keys = append(keys, key)
		}
	}

	return keys
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Values())
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}

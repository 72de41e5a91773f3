// Package database handles all the lower level support for maintaining the
// blockchain in storage and the in memory UTXO set it implies.
package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/signchain/foundation/blockchain/signature"
	"github.com/bits-and-blooms/bloom/v3"
)

// ErrUnknownBlock is returned when a block hash or number isn't part of the
// chain.
var ErrUnknownBlock = errors.New("block not found")

// Serializer interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator walks the blocks in storage converting them to blocks.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages the confirmed blocks and the UTXO set they imply.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	genesisTxID string
	latestBlock Block
	utxos       utxoSet
	hashes      map[string]uint64

	filters []*bloom.BloomFilter
	watched map[string]struct{}
	unspent map[string]map[OutPoint]struct{}

	serializer Serializer
	evHandler  func(v string, args ...any)
}

// New constructs a new database, applies the genesis allocations and replays
// every block found in storage through the same validation used for new
// blocks.
func New(gen genesis.Genesis, serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	db := Database{
		genesis:    gen,
		serializer: serializer,
		evHandler:  ev,
		watched:    make(map[string]struct{}),
	}

	if err := db.applyGenesis(); err != nil {
		return nil, err
	}

	iter := db.serializer.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		view, err := db.validate(block)
		if err != nil {
			return nil, fmt.Errorf("replaying block %d: %w", block.Header.Number, err)
		}

		db.commit(block, view)
	}

	ev("database: New: replayed blocks[%d]: head[%s]", db.latestBlock.Header.Number, db.latestBlock.Hash())

	return &db, nil
}

// Close closes the open blocks database.
func (db *Database) Close() error {
	return db.serializer.Close()
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.serializer.Reset(); err != nil {
		return err
	}

	return db.applyGenesis()
}

// Genesis returns a copy of the genesis information.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// GenesisTxID returns the id of the synthetic transaction holding the
// genesis allocations.
func (db *Database) GenesisTxID() string {
	return db.genesisTxID
}

// Head returns the latest committed block.
func (db *Database) Head() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Lookup implements the UTXOReader interface against committed state.
func (db *Database) Lookup(op OutPoint) (Entry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxos.Lookup(op)
}

// Validate performs every check Append would perform without applying
// the block.
func (db *Database) Validate(block Block) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, err := db.validate(block)
	return err
}

// Append validates the block against the head and the UTXO set, writes it
// to storage and applies it. Nothing changes when any step fails.
func (db *Database) Append(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	view, err := db.validate(block)
	if err != nil {
		return err
	}

	if err := db.serializer.Write(NewBlockData(block)); err != nil {
		return fmt.Errorf("writing block %d: %w", block.Header.Number, err)
	}

	db.commit(block, view)

	db.evHandler("database: Append: blk[%d]: hash[%s]: txs[%d]", block.Header.Number, block.Hash(), len(block.Values()))

	return nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.serializer.ForEach()}
}

// GetBlock searches the blockchain to locate and return the contents of
// the specified block by number. Block 0 is the genesis block.
func (db *Database) GetBlock(num uint64) (Block, error) {
	if num == 0 {
		return Block{Header: BlockHeader{ChainID: db.genesis.ChainID}}, nil
	}

	if num > db.Head().Header.Number {
		return Block{}, fmt.Errorf("%w: %d", ErrUnknownBlock, num)
	}

	blockData, err := db.serializer.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// BlockNumber returns the number of the block with the specified hash.
func (db *Database) BlockNumber(hash string) (uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	num, exists := db.hashes[hash]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrUnknownBlock, hash)
	}

	return num, nil
}

// =============================================================================

// applyGenesis resets the in memory state to the genesis allocations.
func (db *Database) applyGenesis() error {
	db.genesisTxID = signature.Hash(db.genesis)
	db.latestBlock = Block{Header: BlockHeader{ChainID: db.genesis.ChainID}}
	db.utxos = make(utxoSet)
	db.hashes = map[string]uint64{signature.ZeroHash: 0}
	db.unspent = make(map[string]map[OutPoint]struct{})
	for key := range db.watched {
		db.unspent[key] = make(map[OutPoint]struct{})
	}

	filter := newFilter()
	for i, addr := range db.genesis.SortedAllocations() {
		accountID, err := ToAccountID(addr)
		if err != nil {
			return fmt.Errorf("genesis allocation %q: %w", addr, err)
		}

		op := OutPoint{TxID: db.genesisTxID, Index: uint32(i)}
		db.utxos[op] = Entry{Output: TxOut{Value: db.genesis.Allocations[addr], To: accountID}}
		filter.Add(addressKey(accountID))
		db.trackUnspent(op, accountID, true)
	}
	db.filters = []*bloom.BloomFilter{filter}

	return nil
}

// validate checks the block links to the head and applies every transaction
// in order to a view over the UTXO set. The caller must hold a lock.
func (db *Database) validate(block Block) (*View, error) {
	nextNumber := db.latestBlock.Header.Number + 1
	if block.Header.Number != nextNumber {
		return nil, fmt.Errorf("%w: this block is not the next number, got %d, exp %d", ErrInvalidParent, block.Header.Number, nextNumber)
	}

	if block.Header.PrevBlockHash != db.latestBlock.Hash() {
		return nil, fmt.Errorf("%w: parent block hash doesn't match our known parent, got %s, exp %s", ErrInvalidParent, block.Header.PrevBlockHash, db.latestBlock.Hash())
	}

	if err := block.checkFormat(db.genesis.ChainID); err != nil {
		return nil, err
	}

	if block.Header.TimeStamp < db.latestBlock.Header.TimeStamp {
		parentTime := time.UnixMilli(int64(db.latestBlock.Header.TimeStamp))
		blockTime := time.UnixMilli(int64(block.Header.TimeStamp))
		return nil, fmt.Errorf("%w: block timestamp is before parent block, parent %s, block %s", ErrBlockMalformed, parentTime, blockTime)
	}

	view := NewView(db.utxos)
	for i, tx := range block.Values() {
		if err := view.Apply(db.genesis.ChainID, tx, block.Header.Number); err != nil {
			return nil, fmt.Errorf("%w: tx[%d] %s: %w", ErrInvalidTransaction, i, tx.ID(), err)
		}
	}

	return view, nil
}

// commit applies a validated view and moves the head. The caller must hold
// a lock.
func (db *Database) commit(block Block, view *View) {
	filter := newFilter()
	for op, entry := range view.Changes() {
		db.utxos[op] = entry
		filter.Add(addressKey(entry.Output.To))
		db.trackUnspent(op, entry.Output.To, !entry.Spent)
	}

	db.filters = append(db.filters, filter)
	db.hashes[block.Hash()] = block.Header.Number
	db.latestBlock = block
}

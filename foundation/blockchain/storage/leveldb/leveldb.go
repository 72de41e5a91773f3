// Package leveldb implements the ability to read and write blocks to a
// LevelDB database keyed by block number.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

// blockPrefix is the key prefix for block records.
var blockPrefix = []byte("b")

// LevelDB represents the serialization implementation for reading and
// storing blocks in a LevelDB database. This implements the
// database.Serializer interface.
type LevelDB struct {
	db *leveldb.DB
}

// New opens or creates the LevelDB database at the specified path.
func New(dbPath string) (*LevelDB, error) {
	opts := opt.Options{
		Compression: opt.SnappyCompression,
	}

	db, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb %s: %w", dbPath, err)
	}

	return &LevelDB{db: db}, nil
}

// Close closes the underlying database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Write stores the block under its number. An existing block is never
// replaced.
func (l *LevelDB) Write(blockData database.BlockData) error {
	key := blockKey(blockData.Header.Number)

	exists, err := l.db.Has(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("block %d already stored", blockData.Header.Number)
	}

	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	return l.db.Put(key, data, &opt.WriteOptions{Sync: true})
}

// GetBlock returns the contents of the specified block by number.
func (l *LevelDB) GetBlock(num uint64) (database.BlockData, error) {
	data, err := l.db.Get(blockKey(num), nil)
	if err != nil {
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (l *LevelDB) ForEach() database.Iterator {
	return &Iterator{store: l}
}

// Reset deletes every stored block.
func (l *LevelDB) Reset() error {
	iter := l.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()

	var batch leveldb.Batch
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}

	if err := iter.Error(); err != nil {
		return err
	}

	return l.db.Write(&batch, &opt.WriteOptions{Sync: true})
}

// blockKey forms the key for the specified block. Big endian keeps the
// keys ordered by number.
func blockKey(num uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], num)

	return key
}

// =============================================================================

// Iterator represents the iteration implementation for walking through the
// blocks in the database. This implements the database Iterator interface.
type Iterator struct {
	store   *LevelDB // Access to the storage API.
	current uint64   // Current block number being iterated over.
	eoc     bool     // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the database.
func (it *Iterator) Next() (database.BlockData, error) {
	if it.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	it.current++
	blockData, err := it.store.GetBlock(it.current)
	if errors.Is(err, leveldb.ErrNotFound) {
		it.eoc = true
		return database.BlockData{}, nil
	}

	return blockData, err
}

// Done returns the end of chain value.
func (it *Iterator) Done() bool {
	return it.eoc
}

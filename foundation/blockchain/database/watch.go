package database

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
)

// Expected addresses touched by a block and the accepted false positive
// rate for the per block filters.
const (
	filterEstimate = 256
	filterFPRate   = 0.01
)

// Unspent is an unspent output owned by a watched address.
type Unspent struct {
	OutPoint
	Output TxOut  `json:"output"`
	Block  uint64 `json:"block"`
}

// WalletTx is a watched address movement recorded in a block.
type WalletTx struct {
	TxID        string    `json:"txid"`
	Address     AccountID `json:"address"`
	Category    string    `json:"category"`
	Amount      uint64    `json:"amount"`
	Vout        uint32    `json:"vout"`
	BlockNumber uint64    `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
}

// Set of categories for a wallet transaction.
const (
	CategoryReceive = "receive"
	CategorySend    = "send"
)

// =============================================================================

// Watch marks the address so its outputs are indexed for balance queries.
// The current UTXO set is rescanned for the address and the number of blocks
// that touched it is returned.
func (db *Database) Watch(accountID AccountID) (int, error) {
	if !accountID.IsAccountID() {
		return 0, fmt.Errorf("invalid account %q", accountID)
	}

	key := string(addressKey(accountID))

	db.mu.Lock()
	db.watched[key] = struct{}{}

	index := make(map[OutPoint]struct{})
	for op, entry := range db.utxos {
		if !entry.Spent && entry.Output.To.Equal(accountID) {
			index[op] = struct{}{}
		}
	}
	db.unspent[key] = index
	unspent := len(index)

	var candidates []uint64
	for num, filter := range db.filters {
		if filter.Test([]byte(key)) {
			candidates = append(candidates, uint64(num))
		}
	}
	db.mu.Unlock()

	// The filters report false positives so every candidate block is read
	// back before it's counted.
	var blocks int
	for _, num := range candidates {
		touched, err := db.touches(num, key)
		if err != nil {
			return 0, err
		}
		if touched {
			blocks++
		}
	}

	db.evHandler("database: Watch: account[%s]: unspent[%d]: blocks[%d]", accountID, unspent, blocks)

	return blocks, nil
}

// IsWatched reports whether the address was imported.
func (db *Database) IsWatched(accountID AccountID) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.watched[string(addressKey(accountID))]
	return exists
}

// Unspent returns the unspent outputs of the watched addresses ordered by
// block and outpoint.
func (db *Database) Unspent(accountIDs ...AccountID) ([]Unspent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []Unspent
	for _, accountID := range accountIDs {
		index, exists := db.unspent[string(addressKey(accountID))]
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrNotWatched, accountID)
		}

		for op := range index {
			entry := db.utxos[op]
			out = append(out, Unspent{OutPoint: op, Output: entry.Output, Block: entry.Block})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Block != out[j].Block {
			return out[i].Block < out[j].Block
		}
		if out[i].TxID != out[j].TxID {
			return out[i].TxID < out[j].TxID
		}
		return out[i].Index < out[j].Index
	})

	return out, nil
}

// Balance returns the sum of the unspent outputs of a watched address.
func (db *Database) Balance(accountID AccountID) (uint64, error) {
	unspent, err := db.Unspent(accountID)
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, u := range unspent {
		total += u.Output.Value
	}

	return total, nil
}

// History returns the movements of the watched addresses in the blocks
// numbered from and above. Blocks whose filter doesn't match any watched
// address are never read from storage.
func (db *Database) History(from uint64) ([]WalletTx, error) {
	db.mu.RLock()
	watched := make([]string, 0, len(db.watched))
	for key := range db.watched {
		watched = append(watched, key)
	}
	filters := db.filters
	genesisTxID := db.genesisTxID
	db.mu.RUnlock()

	var out []WalletTx
	for num := from; num < uint64(len(filters)); num++ {
		if !matchAny(filters[num], watched) {
			continue
		}

		if num == 0 {
			for i, addr := range db.genesis.SortedAllocations() {
				if !contains(watched, addr) {
					continue
				}
				out = append(out, WalletTx{
					TxID:      genesisTxID,
					Address:   AccountID(addr),
					Category:  CategoryReceive,
					Amount:    db.genesis.Allocations[addr],
					Vout:      uint32(i),
					BlockHash: Block{}.Hash(),
				})
			}
			continue
		}

		block, err := db.GetBlock(num)
		if err != nil {
			return nil, err
		}

		out = append(out, db.walletTxs(block, watched)...)
	}

	return out, nil
}

// touches reports whether the block moved funds from or to the normalized
// address.
func (db *Database) touches(num uint64, key string) (bool, error) {
	if num == 0 {
		for addr := range db.genesis.Allocations {
			if contains([]string{key}, addr) {
				return true, nil
			}
		}
		return false, nil
	}

	block, err := db.GetBlock(num)
	if err != nil {
		return false, err
	}

	return len(db.walletTxs(block, []string{key})) > 0, nil
}

// walletTxs extracts the watched movements from a single block.
func (db *Database) walletTxs(block Block, watched []string) []WalletTx {
	hash := block.Hash()

	var out []WalletTx
	for _, tx := range block.Values() {
		id := tx.ID()

		for _, in := range tx.Inputs {
			entry, err := db.Lookup(in)
			if err != nil || !contains(watched, string(entry.Output.To)) {
				continue
			}
			out = append(out, WalletTx{
				TxID:        id,
				Address:     entry.Output.To,
				Category:    CategorySend,
				Amount:      entry.Output.Value,
				Vout:        in.Index,
				BlockNumber: block.Header.Number,
				BlockHash:   hash,
			})
		}

		for i, o := range tx.Outputs {
			if !contains(watched, string(o.To)) {
				continue
			}
			out = append(out, WalletTx{
				TxID:        id,
				Address:     o.To,
				Category:    CategoryReceive,
				Amount:      o.Value,
				Vout:        uint32(i),
				BlockNumber: block.Header.Number,
				BlockHash:   hash,
			})
		}
	}

	return out
}

// trackUnspent keeps the unspent index of a watched address current. The
// caller must hold a lock.
func (db *Database) trackUnspent(op OutPoint, accountID AccountID, unspent bool) {
	index, exists := db.unspent[string(addressKey(accountID))]
	if !exists {
		return
	}

	switch unspent {
	case true:
		index[op] = struct{}{}
	default:
		delete(index, op)
	}
}

// =============================================================================

// newFilter constructs the filter used to record the addresses a block
// touches.
func newFilter() *bloom.BloomFilter {
	return bloom.NewWithEstimates(filterEstimate, filterFPRate)
}

// addressKey normalizes the address so lookups ignore checksum casing.
func addressKey(accountID AccountID) []byte {
	return []byte(strings.ToLower(string(accountID)))
}

// matchAny tests the filter for any of the normalized addresses.
func matchAny(filter *bloom.BloomFilter, keys []string) bool {
	for _, key := range keys {
		if filter.Test([]byte(key)) {
			return true
		}
	}
	return false
}

// contains checks the normalized address against the set of keys.
func contains(keys []string, addr string) bool {
	addr = strings.ToLower(addr)
	for _, key := range keys {
		if key == addr {
			return true
		}
	}
	return false
}

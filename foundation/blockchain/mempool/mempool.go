// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
)

// Set of errors returned by admission.
var (
	ErrAlreadyKnown = errors.New("transaction already in mempool")
	ErrConflict     = errors.New("input claimed by a mempool transaction")
)

// Mempool represents a cache of transactions waiting to be included in a
// block, kept in the order they were admitted. Outputs created by pooled
// transactions are visible to later admissions and every input is claimed
// by exactly one pooled transaction.
type Mempool struct {
	mu      sync.RWMutex
	chainID uint16
	pool    map[string]database.SignedTx
	order   []string
	spends  map[database.OutPoint]string
	outputs map[database.OutPoint]database.Entry
}

// New constructs a new mempool for the specified chain.
func New(chainID uint16) *Mempool {
	mp := Mempool{
		chainID: chainID,
	}
	mp.reset()

	return &mp
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Get returns the pooled transaction with the specified id.
func (mp *Mempool) Get(id string) (database.SignedTx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	tx, exists := mp.pool[id]
	return tx, exists
}

// Admit validates the transaction against the ledger and the outputs of the
// transactions already pooled, then adds it to the end of the pool.
func (mp *Mempool) Admit(tx database.SignedTx, ledger database.UTXOReader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.admit(tx, ledger)
}

// Snapshot returns a copy of the pooled transactions in admission order.
func (mp *Mempool) Snapshot() []database.SignedTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.SignedTx, len(mp.order))
	for i, id := range mp.order {
		txs[i] = mp.pool[id]
	}

	return txs
}

// IDs returns the ids of the pooled transactions in admission order.
func (mp *Mempool) IDs() []string {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	ids := make([]string, len(mp.order))
	copy(ids, mp.order)

	return ids
}

// Evict removes exactly the specified transactions along with the outputs
// they created and the inputs they claimed. Unknown ids are ignored. The
// number of removed transactions is returned.
func (mp *Mempool) Evict(ids ...string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, exists := mp.pool[id]; exists {
			remove[id] = struct{}{}
		}
	}

	if len(remove) == 0 {
		return 0
	}

	order := mp.order[:0]
	for _, id := range mp.order {
		if _, evict := remove[id]; !evict {
			order = append(order, id)
			continue
		}

		tx := mp.pool[id]
		for _, in := range tx.Inputs {
			delete(mp.spends, in)
		}
		for i := range tx.Outputs {
			delete(mp.outputs, database.OutPoint{TxID: id, Index: uint32(i)})
		}
		delete(mp.pool, id)
	}
	mp.order = order

	return len(remove)
}

// Revalidate re-admits every pooled transaction in admission order against
// the ledger and drops the ones that no longer validate. This is how
// transactions that conflict with a block from a peer leave the pool. The
// ids of the dropped transactions are returned.
func (mp *Mempool) Revalidate(ledger database.UTXOReader) []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	txs := make([]database.SignedTx, len(mp.order))
	for i, id := range mp.order {
		txs[i] = mp.pool[id]
	}

	mp.reset()

	var dropped []string
	for _, tx := range txs {
		if err := mp.admit(tx, ledger); err != nil {
			dropped = append(dropped, tx.ID())
		}
	}

	return dropped
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.reset()
}

// =============================================================================

// admit performs the admission. The caller must hold the write lock.
func (mp *Mempool) admit(tx database.SignedTx, ledger database.UTXOReader) error {
	id := tx.ID()
	if _, exists := mp.pool[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyKnown, id)
	}

	for _, in := range tx.Inputs {
		if spender, claimed := mp.spends[in]; claimed {
			return fmt.Errorf("%w: %w: %s claimed by %s", database.ErrDoubleSpend, ErrConflict, in, spender)
		}
	}

	if _, _, err := database.CheckTx(mp.chainID, tx, layered{mp: mp, ledger: ledger}); err != nil {
		return err
	}

	for _, in := range tx.Inputs {
		mp.spends[in] = id
	}
	for i, out := range tx.Outputs {
		mp.outputs[database.OutPoint{TxID: id, Index: uint32(i)}] = database.Entry{Output: out}
	}
	mp.pool[id] = tx
	mp.order = append(mp.order, id)

	return nil
}

// reset empties the pool. The caller must hold the write lock.
func (mp *Mempool) reset() {
	mp.pool = make(map[string]database.SignedTx)
	mp.order = nil
	mp.spends = make(map[database.OutPoint]string)
	mp.outputs = make(map[database.OutPoint]database.Entry)
}

// =============================================================================

// layered resolves outpoints against the provisional outputs first and the
// ledger second. The caller must hold the mempool lock.
type layered struct {
	mp     *Mempool
	ledger database.UTXOReader
}

// Lookup implements the database.UTXOReader interface.
func (l layered) Lookup(op database.OutPoint) (database.Entry, error) {
	if entry, exists := l.mp.outputs[op]; exists {
		return entry, nil
	}

	return l.ledger.Lookup(op)
}

package database

import (
	"fmt"
	"math"
)

// Entry is the ledger record for a single output. Spent entries are kept so
// a second spend can be told apart from a reference to nothing.
type Entry struct {
	Output TxOut  `json:"output"`
	Spent  bool   `json:"spent"`
	Block  uint64 `json:"block"`
}

// UTXOReader represents the behavior required to resolve an outpoint. The
// ledger implements it and so do the views layered over it.
type UTXOReader interface {
	Lookup(op OutPoint) (Entry, error)
}

// utxoSet is the committed set of outputs. It is not safe for concurrent
// use, the Database guards it.
type utxoSet map[OutPoint]Entry

// Lookup implements the UTXOReader interface.
func (us utxoSet) Lookup(op OutPoint) (Entry, error) {
	entry, exists := us[op]
	if !exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownInput, op)
	}

	return entry, nil
}

// =============================================================================

// CheckTx validates a signed transaction against the outputs visible through
// the reader. It returns the signer and the fee the transaction burns.
func CheckTx(chainID uint16, tx SignedTx, r UTXOReader) (AccountID, uint64, error) {
	if err := tx.Validate(chainID); err != nil {
		return "", 0, err
	}

	from, err := tx.FromAccount()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s", ErrInvalidTxSignature, err)
	}

	var totalIn uint64
	for _, in := range tx.Inputs {
		entry, err := r.Lookup(in)
		if err != nil {
			return "", 0, err
		}

		if entry.Spent {
			return "", 0, fmt.Errorf("%w: %s", ErrDoubleSpend, in)
		}

		if !entry.Output.To.Equal(from) {
			return "", 0, fmt.Errorf("%w: input %s owned by %s, signed by %s", ErrInvalidTxSignature, in, entry.Output.To, from)
		}

		if entry.Output.Value > math.MaxUint64-totalIn {
			return "", 0, fmt.Errorf("%w: input total overflows", ErrMalformedTx)
		}
		totalIn += entry.Output.Value
	}

	totalOut, err := tx.TotalOut()
	if err != nil {
		return "", 0, err
	}

	if totalOut > totalIn {
		return "", 0, fmt.Errorf("%w: in %d, out %d", ErrInsufficientFunds, totalIn, totalOut)
	}

	return from, totalIn - totalOut, nil
}

// =============================================================================

// View layers uncommitted changes over a reader. Transactions applied to the
// view see the outputs created and spent by earlier transactions applied to
// the same view, which is how a block is checked in order.
type View struct {
	base    UTXOReader
	entries map[OutPoint]Entry
}

// NewView constructs an empty view over the specified reader.
func NewView(base UTXOReader) *View {
	return &View{
		base:    base,
		entries: make(map[OutPoint]Entry),
	}
}

// Lookup implements the UTXOReader interface.
func (v *View) Lookup(op OutPoint) (Entry, error) {
	if entry, exists := v.entries[op]; exists {
		return entry, nil
	}

	return v.base.Lookup(op)
}

// Apply checks the transaction against the view and records its spends and
// outputs when it's valid. The view is left untouched on failure.
func (v *View) Apply(chainID uint16, tx SignedTx, blockNum uint64) error {
	if _, _, err := CheckTx(chainID, tx, v); err != nil {
		return err
	}

	for _, in := range tx.Inputs {
		entry, err := v.Lookup(in)
		if err != nil {
			return err
		}
		entry.Spent = true
		v.entries[in] = entry
	}

	id := tx.ID()
	for i, out := range tx.Outputs {
		v.entries[OutPoint{TxID: id, Index: uint32(i)}] = Entry{
			Output: out,
			Block:  blockNum,
		}
	}

	return nil
}

// Changes returns the set of entries the view would write to its base.
func (v *View) Changes() map[OutPoint]Entry {
	return v.entries
}

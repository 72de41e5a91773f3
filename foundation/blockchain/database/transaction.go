package database

import (
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"

	"github.com/ardanlabs/signchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// OutPoint references a single output of a prior transaction.
type OutPoint struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"vout"`
}

// String implements the fmt.Stringer interface for logging.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Index)
}

// TxOut is an amount of value assigned to an account.
type TxOut struct {
	Value uint64    `json:"value"`
	To    AccountID `json:"to"`
}

// =============================================================================

// Tx is the transactional information consuming prior outputs and creating
// new ones.
type Tx struct {
	ChainID uint16     `json:"chain_id"` // Ethereum: The chain id that is listed in the genesis file.
	Inputs  []OutPoint `json:"inputs"`   // Bitcoin: Prior outputs being consumed, all owned by the signer.
	Outputs []TxOut    `json:"outputs"`  // Bitcoin: New outputs created by this transaction.
}

// NewTx constructs a new transaction.
func NewTx(chainID uint16, inputs []OutPoint, outputs []TxOut) (Tx, error) {
	tx := Tx{
		ChainID: chainID,
		Inputs:  inputs,
		Outputs: outputs,
	}

	if err := tx.checkFormat(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if err := tx.checkFormat(); err != nil {
		return SignedTx{}, err
	}

	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction by adding the signature
	// in the [R|S|V] format.
	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// TotalOut returns the sum of the output values.
func (tx Tx) TotalOut() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if out.Value > math.MaxUint64-total {
			return 0, fmt.Errorf("%w: output total overflows", ErrMalformedTx)
		}
		total += out.Value
	}

	return total, nil
}

// checkFormat performs the checks that don't require the ledger.
func (tx Tx) checkFormat() error {
	if len(tx.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrMalformedTx)
	}

	if len(tx.Outputs) == 0 {
		return fmt.Errorf("%w: no outputs", ErrMalformedTx)
	}

	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, exists := seen[in]; exists {
			return fmt.Errorf("%w: duplicate input %s", ErrMalformedTx, in)
		}
		seen[in] = struct{}{}
	}

	for i, out := range tx.Outputs {
		if out.Value == 0 {
			return fmt.Errorf("%w: output %d has no value", ErrMalformedTx, i)
		}
		if !out.To.IsAccountID() {
			return fmt.Errorf("%w: output %d account is not properly formatted", ErrMalformedTx, i)
		}
	}

	if _, err := tx.TotalOut(); err != nil {
		return err
	}

	return nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain and how
// transactions are recorded inside a block.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Ethereum: Recovery identifier, either 29 or 30 with signetID.
	R *big.Int `json:"r"` // Ethereum: First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Ethereum: Second coordinate of the ECDSA signature.
}

// ID returns the unique id for the transaction.
func (tx SignedTx) ID() string {
	return signature.Hash(tx)
}

// Validate verifies the transaction is well formed for the specified chain
// and has a signature that conforms to our standards.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("%w: wrong chain id, got %d, exp %d", ErrMalformedTx, tx.ChainID, chainID)
	}

	if err := tx.checkFormat(); err != nil {
		return err
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTxSignature, err)
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction.
func (tx SignedTx) FromAccount() (AccountID, error) {
	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	return AccountID(address), err
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	from, err := tx.FromAccount()
	if err != nil {
		from = "unknown"
	}

	return fmt.Sprintf("%s:%s", from, tx.ID())
}

// Hash implements the merkle Hashable interface for providing a hash
// of a signed transaction.
func (tx SignedTx) Hash() ([]byte, error) {
	return hexutil.Decode(tx.ID())
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions.
func (tx SignedTx) Equals(otherTx SignedTx) bool {
	return tx.ID() == otherTx.ID()
}

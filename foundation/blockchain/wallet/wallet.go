// Package wallet builds and signs transactions that spend the unspent
// outputs of a single account.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoValue is returned when a transaction would move nothing.
var ErrNoValue = errors.New("value must be greater than zero")

// Wallet holds the private key of an account on a specific chain.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	accountID  database.AccountID
	chainID    uint16
}

// New constructs a wallet for the private key.
func New(privateKey *ecdsa.PrivateKey, chainID uint16) *Wallet {
	return &Wallet{
		privateKey: privateKey,
		accountID:  database.PublicKeyToAccountID(privateKey.PublicKey),
		chainID:    chainID,
	}
}

// Load reads the hex encoded private key file and constructs a wallet.
func Load(path string, chainID uint16) (*Wallet, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load private key: %w", err)
	}

	return New(privateKey, chainID), nil
}

// AccountID returns the address of the wallet.
func (w *Wallet) AccountID() database.AccountID {
	return w.accountID
}

// Transact builds a transaction paying value to the account, funded from
// the unspent outputs. Outputs are selected oldest first and anything left
// over beyond the fee is paid back to the wallet.
func (w *Wallet) Transact(unspent []database.Unspent, to database.AccountID, value uint64, fee uint64) (database.SignedTx, error) {
	if value == 0 {
		return database.SignedTx{}, ErrNoValue
	}

	if !to.IsAccountID() {
		return database.SignedTx{}, fmt.Errorf("invalid account id %q", to)
	}

	inputs, total, err := w.selectInputs(unspent, value+fee)
	if err != nil {
		return database.SignedTx{}, err
	}

	outputs := []database.TxOut{{Value: value, To: to}}
	if change := total - value - fee; change > 0 {
		outputs = append(outputs, database.TxOut{Value: change, To: w.accountID})
	}

	tx, err := database.NewTx(w.chainID, inputs, outputs)
	if err != nil {
		return database.SignedTx{}, err
	}

	return tx.Sign(w.privateKey)
}

// =============================================================================

// selectInputs picks owned outputs until the target is covered.
func (w *Wallet) selectInputs(unspent []database.Unspent, target uint64) ([]database.OutPoint, uint64, error) {
	owned := make([]database.Unspent, 0, len(unspent))
	for _, u := range unspent {
		if u.Output.To.Equal(w.accountID) {
			owned = append(owned, u)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].Block != owned[j].Block {
			return owned[i].Block < owned[j].Block
		}
		if owned[i].TxID != owned[j].TxID {
			return owned[i].TxID < owned[j].TxID
		}
		return owned[i].Index < owned[j].Index
	})

	var inputs []database.OutPoint
	var total uint64
	for _, u := range owned {
		inputs = append(inputs, u.OutPoint)
		total += u.Output.Value
		if total >= target {
			return inputs, total, nil
		}
	}

	return nil, 0, fmt.Errorf("%w: have %d, need %d", database.ErrInsufficientFunds, total, target)
}

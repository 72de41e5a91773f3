package database

import "errors"

// Set of rejection errors produced while validating transactions and blocks
// against the ledger. Callers compare with errors.Is since most of these
// are wrapped with the offending outpoint or transaction.
var (
	ErrUnknownInput       = errors.New("transaction input does not exist")
	ErrDoubleSpend        = errors.New("transaction input already spent")
	ErrInvalidTxSignature = errors.New("transaction not signed by the input owner")
	ErrInsufficientFunds  = errors.New("transaction outputs exceed inputs")
	ErrMalformedTx        = errors.New("transaction is malformed")
	ErrInvalidParent      = errors.New("block parent does not match head")
	ErrInvalidTransaction = errors.New("block contains an invalid transaction")
	ErrBlockMalformed     = errors.New("block is malformed")
	ErrNotWatched         = errors.New("address is not watched")
)

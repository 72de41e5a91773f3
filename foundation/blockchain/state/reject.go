package state

import (
	"errors"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/signchain/foundation/blockchain/signer"
	"github.com/ardanlabs/signchain/foundation/retry"
)

// ErrNotConnected is returned when an operation needs a synced peer and
// there is none.
var ErrNotConnected = errors.New("no synced connection to peer")

// Set of stable reject reasons reported to wallets and peers.
const (
	RejectInputsMissing   = "bad-txns-inputs-missing"
	RejectInputsSpent     = "bad-txns-inputs-spent"
	RejectMempoolConflict = "txn-mempool-conflict"
	RejectAlreadyKnown    = "txn-already-in-mempool"
	RejectSignature       = "mandatory-script-verify-flag-failed"
	RejectBelowOut        = "bad-txns-in-belowout"
	RejectMalformedTx     = "bad-txns-malformed"
	RejectPrevBlock       = "bad-prevblk"
	RejectBlockTxns       = "bad-blk-txns"
	RejectBlockMalformed  = "bad-blk-malformed"
	RejectBlockProof      = "block-proof-invalid"
	RejectTimeout         = "timeout"
	RejectNotConnected    = "not-connected"
)

// RejectReason renders the error as its stable reason. Errors outside of the
// rejection set return an empty string.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""

	// Block level reasons come first since they wrap the transaction cause.
	case errors.Is(err, signer.ErrInvalidSignature), errors.Is(err, signer.ErrNotAuthorized):
		return RejectBlockProof
	case errors.Is(err, database.ErrInvalidParent):
		return RejectPrevBlock
	case errors.Is(err, database.ErrInvalidTransaction):
		return RejectBlockTxns
	case errors.Is(err, database.ErrBlockMalformed):
		return RejectBlockMalformed

	case errors.Is(err, mempool.ErrAlreadyKnown):
		return RejectAlreadyKnown
	case errors.Is(err, mempool.ErrConflict):
		return RejectMempoolConflict
	case errors.Is(err, database.ErrUnknownInput):
		return RejectInputsMissing
	case errors.Is(err, database.ErrDoubleSpend):
		return RejectInputsSpent
	case errors.Is(err, database.ErrInvalidTxSignature):
		return RejectSignature
	case errors.Is(err, database.ErrInsufficientFunds):
		return RejectBelowOut
	case errors.Is(err, database.ErrMalformedTx):
		return RejectMalformedTx

	case errors.Is(err, retry.ErrTimeout):
		return RejectTimeout
	case errors.Is(err, ErrNotConnected):
		return RejectNotConnected
	}

	return ""
}

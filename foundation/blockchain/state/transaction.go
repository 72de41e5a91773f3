package state

import (
	"fmt"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/mempool"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
// The id of the admitted transaction is returned.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) (string, error) {
	if err := s.admit(signedTx); err != nil {
		return "", err
	}

	s.Worker.SignalShareTx()

	return signedTx.ID(), nil
}

// UpsertNodeTransaction accepts a transaction relayed by the specified peer.
// The peer is marked as having the transaction whether it's admitted or not
// so it's never sent back.
func (s *State) UpsertNodeTransaction(from string, signedTx database.SignedTx) error {
	if conn, exists := s.knownPeers.Get(from); exists {
		conn.MarkTx(signedTx.ID())
	}

	if err := s.admit(signedTx); err != nil {
		return err
	}

	s.Worker.SignalShareTx()

	return nil
}

// =============================================================================

// admit runs the transaction through mempool admission under the writer
// lock.
func (s *State) admit(signedTx database.SignedTx) error {
	id := signedTx.ID()

	// CORE NOTE: A transaction confirmed in a recent block has already left
	// the mempool. Peers that are a block behind keep relaying it, so it's
	// reported as known instead of as a double spend.

	s.mu.Lock()
	err := s.checkSeen(id)
	if err == nil {
		err = s.mempool.Admit(signedTx, s.db)
	}
	count := s.mempool.Count()
	s.mu.Unlock()

	if err != nil {
		s.evHandler("state: admit: tx[%s]: rejected: %s", id, err)
		prometheusTxsRejected.WithLabelValues(RejectReason(err)).Inc()
		return err
	}

	prometheusTxsAdmitted.Inc()
	prometheusMempoolSize.Set(float64(count))

	s.evHandler("viewer: state: admit: tx[%s]: mempool[%d]", signedTx, count)

	return nil
}

// checkSeen fails transactions confirmed in a recent block. The caller must
// hold the writer lock so a commit can't land between this check and
// admission.
func (s *State) checkSeen(id string) error {
	if s.seen.Has(id) {
		return fmt.Errorf("%w: %s recently confirmed", mempool.ErrAlreadyKnown, id)
	}

	return nil
}

// UpsertNodeTransactions accepts a batch relayed by a peer. Rejections don't
// fail the batch, the reason for each rejected transaction is returned by id.
func (s *State) UpsertNodeTransactions(batch TxBatch) map[string]string {
	rejected := make(map[string]string)
	for _, tx := range batch.Txs {
		if err := s.UpsertNodeTransaction(batch.From, tx); err != nil {
			reason := RejectReason(err)
			if reason == "" {
				reason = err.Error()
			}
			rejected[tx.ID()] = reason
		}
	}

	return rejected
}

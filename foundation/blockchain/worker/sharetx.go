package worker

// shareTxOperations handles sharing new block transactions.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case <-w.txSharing:
			if !w.isShutdown() {
				w.runShareTxOperation()
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}

// runShareTxOperation sends the mempool delta to every synced peer.
func (w *Worker) runShareTxOperation() {
	w.evHandler("worker: runShareTxOperation: started")
	defer w.evHandler("worker: runShareTxOperation: completed")

	w.state.NetShareTxs(w.ctx)
}

// =============================================================================

// shareBlockOperations handles sharing newly committed blocks.
func (w *Worker) shareBlockOperations() {
	w.evHandler("worker: shareBlockOperations: G started")
	defer w.evHandler("worker: shareBlockOperations: G completed")

	for {
		select {
		case <-w.blockSharing:
			if !w.isShutdown() {
				w.runShareBlockOperation()
			}
		case <-w.shut:
			w.evHandler("worker: shareBlockOperations: received shut signal")
			return
		}
	}
}

// runShareBlockOperation sends the blocks above each synced peer's
// watermark.
func (w *Worker) runShareBlockOperation() {
	w.evHandler("worker: runShareBlockOperation: started")
	defer w.evHandler("worker: runShareBlockOperation: completed")

	w.state.NetShareBlocks(w.ctx)
}

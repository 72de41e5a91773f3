package worker

// peerOperations handles keeping the peer connections synced.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation refreshes the synced peers and reconnects the dropped
// peers that are due.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	w.state.NetSyncPeers(w.ctx)

	// Anything committed or admitted while pulling from peers is pushed
	// to the rest.
	w.state.NetShareBlocks(w.ctx)
	w.state.NetShareTxs(w.ctx)
}

// =============================================================================

// connectOperations handles connect requests from peers that said hello.
func (w *Worker) connectOperations() {
	w.evHandler("worker: connectOperations: G started")
	defer w.evHandler("worker: connectOperations: G completed")

	for {
		select {
		case host := <-w.connecting:
			if !w.isShutdown() {
				w.runConnectOperation(host)
			}
		case <-w.shut:
			w.evHandler("worker: connectOperations: received shut signal")
			return
		}
	}
}

// runConnectOperation connects to the specified host.
func (w *Worker) runConnectOperation(host string) {
	w.evHandler("worker: runConnectOperation: started: host[%s]", host)
	defer w.evHandler("worker: runConnectOperation: completed: host[%s]", host)

	if err := w.state.Connect(w.ctx, host); err != nil {
		w.evHandler("worker: runConnectOperation: host[%s]: ERROR: %s", host, err)
	}
}

// Package worker implements block and transaction sharing and keeps the
// peer connections of the node alive.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/state"
)

// maxConnectRequests represents the max number of pending connect requests
// that can be outstanding before new requests are dropped.
const maxConnectRequests = 32

// =============================================================================

// Worker manages the propagation workflows for the blockchain.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	ctx          context.Context
	cancel       context.CancelFunc
	shut         chan struct{}
	txSharing    chan bool
	blockSharing chan bool
	connecting   chan string
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes. The peer connections are checked
// every syncInterval.
func Run(st *state.State, syncInterval time.Duration, evHandler state.EventHandler) *Worker {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:        st,
		ticker:       time.NewTicker(syncInterval),
		ctx:          ctx,
		cancel:       cancel,
		shut:         make(chan struct{}),
		txSharing:    make(chan bool, 1),
		blockSharing: make(chan bool, 1),
		connecting:   make(chan string, maxConnectRequests),
		evHandler:    ev,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.connectOperations,
		w.shareTxOperations,
		w.shareBlockOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// Connect to the peers this node was started with.
	for _, peer := range st.KnownPeers() {
		w.SignalConnect(peer.Host)
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: cancel network calls")
	w.cancel()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalShareTx signals a share transaction operation. If there is already
// a signal pending in the channel, just return since the pending operation
// will pick up every transaction in the mempool.
func (w *Worker) SignalShareTx() {
	select {
	case w.txSharing <- true:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
	}
}

// SignalShareBlock signals a share block operation. If there is already a
// signal pending in the channel, just return.
func (w *Worker) SignalShareBlock() {
	select {
	case w.blockSharing <- true:
		w.evHandler("worker: SignalShareBlock: share block signaled")
	default:
	}
}

// SignalConnect signals a connect operation to the specified host. If
// maxConnectRequests signals exist in the channel, the request is dropped
// and the peer ticker picks the peer up later.
func (w *Worker) SignalConnect(host string) {
	select {
	case w.connecting <- host:
		w.evHandler("worker: SignalConnect: connect signaled: host[%s]", host)
	default:
		w.evHandler("worker: SignalConnect: queue full, host[%s] won't be connected now", host)
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

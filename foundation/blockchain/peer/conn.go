package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/looplab/fsm"
)

// Set of states a connection moves through.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateSynced       = "synced"
)

// Set of events that move a connection between states.
const (
	EventConnect = "connect"
	EventSync    = "sync"
	EventDrop    = "drop"
)

// Bounds for the wait before a dropped connection is attempted again.
const (
	reconnectMin = 500 * time.Millisecond
	reconnectMax = 30 * time.Second
)

// Conn represents the connection to a single peer. It tracks the state of
// the handshake and a watermark of what has been exchanged so only the
// difference is sent.
type Conn struct {
	Peer Peer

	mu      sync.Mutex
	fsm     *fsm.FSM
	since   time.Time
	backoff *backoff.Backoff
	retryAt time.Time
	status  PeerStatus

	blockNumber uint64
	blockHash   string
	txs         map[string]struct{}
}

// NewConn constructs a disconnected connection to the peer.
func NewConn(peer Peer) *Conn {
	c := Conn{
		Peer:  peer,
		since: time.Now(),
		backoff: &backoff.Backoff{
			Min:    reconnectMin,
			Max:    reconnectMax,
			Factor: 2,
			Jitter: true,
		},
		txs: make(map[string]struct{}),
	}

	c.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: EventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: EventSync, Src: []string{StateConnecting}, Dst: StateSynced},
			{Name: EventDrop, Src: []string{StateConnecting, StateSynced}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.since = time.Now()
			},
		},
	)

	return &c
}

// State returns the current state of the connection.
func (c *Conn) State() string {
	return c.fsm.Current()
}

// Since returns when the connection entered its current state.
func (c *Conn) Since() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.since
}

// IsSynced reports whether the handshake completed.
func (c *Conn) IsSynced() bool {
	return c.fsm.Is(StateSynced)
}

// Connecting moves a disconnected connection into the handshake. It fails
// when a handshake is running or already completed.
func (c *Conn) Connecting(ctx context.Context) error {
	return c.event(ctx, EventConnect)
}

// Synced records the handshake completed.
func (c *Conn) Synced(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.eventLocked(ctx, EventSync); err != nil {
		return err
	}

	c.backoff.Reset()
	c.retryAt = time.Time{}

	return nil
}

// Drop moves the connection to disconnected, forgets the exchanged
// transactions and schedules the next attempt. The wait before that attempt
// grows with every drop until the connection syncs again.
func (c *Conn) Drop(ctx context.Context) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fsm.Can(EventDrop) {
		c.fsm.Event(ctx, EventDrop)
	}

	wait := c.backoff.Duration()
	c.retryAt = time.Now().Add(wait)
	c.txs = make(map[string]struct{})

	return wait
}

// Due reports whether a dropped connection should be attempted again.
func (c *Conn) Due(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fsm.Is(StateDisconnected) && !c.retryAt.IsZero() && !now.Before(c.retryAt)
}

// SetStatus records the latest status reported by the peer.
func (c *Conn) SetStatus(status PeerStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

// Status returns the latest status reported by the peer.
func (c *Conn) Status() PeerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// =============================================================================

// MarkBlock records the peer has the specified block. The watermark never
// moves backwards.
func (c *Conn) MarkBlock(number uint64, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if number < c.blockNumber {
		return
	}

	c.blockNumber = number
	c.blockHash = hash
}

// BlockMark returns the last block known to be held by the peer.
func (c *Conn) BlockMark() (uint64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blockNumber, c.blockHash
}

// ResetBlocks sets the watermark to what the peer reported during the
// handshake, which may be lower than a previous mark.
func (c *Conn) ResetBlocks(number uint64, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blockNumber = number
	c.blockHash = hash
}

// MarkTx records the peer has the specified transactions.
func (c *Conn) MarkTx(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		c.txs[id] = struct{}{}
	}
}

// HasTx reports whether the transaction was exchanged with the peer.
func (c *Conn) HasTx(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.txs[id]
	return exists
}

// TxDelta returns the ids the peer is not known to have, keeping the order
// of the input.
func (c *Conn) TxDelta(ids []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var delta []string
	for _, id := range ids {
		if _, exists := c.txs[id]; !exists {
			delta = append(delta, id)
		}
	}

	return delta
}

// Retain forgets every exchanged transaction not in the specified set so
// the watermark doesn't grow past the size of the mempool.
func (c *Conn) Retain(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.txs {
		if _, exists := keep[id]; !exists {
			delete(c.txs, id)
		}
	}
}

// =============================================================================

// event fires the event when the current state allows it.
func (c *Conn) event(ctx context.Context, event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.eventLocked(ctx, event)
}

// eventLocked fires the event. The caller must hold the lock.
func (c *Conn) eventLocked(ctx context.Context, event string) error {
	if !c.fsm.Can(event) {
		return fmt.Errorf("peer %s: event %s not allowed in state %s", c.Peer.Host, event, c.fsm.Current())
	}

	return c.fsm.Event(ctx, event)
}

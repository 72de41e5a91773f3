package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/signchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/signchain/foundation/blockchain/peer"
	"github.com/ardanlabs/signchain/foundation/retry"
)

// Connect performs the handshake with the specified host until the
// connection is synced or the attempts run out. The returned error wraps
// retry.ErrTimeout when the peer could not be reached in time.
func (s *State) Connect(ctx context.Context, host string) error {
	s.evHandler("state: Connect: started: host[%s]", host)
	defer s.evHandler("state: Connect: completed: host[%s]", host)

	if host == s.host {
		return errors.New("can't connect to self")
	}

	conn, _ := s.knownPeers.Add(peer.New(host))

	err := retry.Until(ctx, s.connectPolicy, func(ctx context.Context) error {
		return s.handshake(ctx, conn)
	})

	prometheusSyncedPeers.Set(float64(s.knownPeers.CountSynced()))

	return err
}

// AcceptHello records a peer that connected to this node and asks the worker
// to connect back so both sides keep a synced connection.
func (s *State) AcceptHello(status peer.PeerStatus) error {
	if err := s.checkPeer(status); err != nil {
		return err
	}

	if status.Host == s.host {
		return errors.New("can't connect to self")
	}

	conn, created := s.knownPeers.Add(peer.New(status.Host))
	if created {
		s.evHandler("state: AcceptHello: new peer[%s]", status.Host)
	}

	conn.SetStatus(status)

	if conn.State() == peer.StateDisconnected {
		s.Worker.SignalConnect(status.Host)
	}

	return nil
}

// =============================================================================

// handshake performs a single attempt at bringing the connection to synced.
// Any failure leaves the connection disconnected with a reconnect scheduled.
func (s *State) handshake(ctx context.Context, conn *peer.Conn) error {
	if conn.IsSynced() {
		return nil
	}

	if err := conn.Connecting(ctx); err != nil {
		return err
	}

	if err := s.runHandshake(ctx, conn); err != nil {
		wait := conn.Drop(ctx)
		prometheusRelayErrors.WithLabelValues("handshake").Inc()
		s.evHandler("state: handshake: peer[%s]: ERROR: %s: retry in %s", conn.Peer.Host, err, wait)
		return err
	}

	if err := conn.Synced(ctx); err != nil {
		return err
	}

	s.evHandler("viewer: state: handshake: peer[%s]: synced", conn.Peer.Host)

	// Push anything the peer doesn't have yet.
	s.Worker.SignalShareTx()
	s.Worker.SignalShareBlock()

	return nil
}

// runHandshake checks the peer is on the same chain, introduces this node,
// pulls the missing blocks and then the peer's mempool.
func (s *State) runHandshake(ctx context.Context, conn *peer.Conn) error {
	host := conn.Peer.Host

	status, err := s.transport.Status(ctx, host)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if err := s.checkPeer(status); err != nil {
		return err
	}
	conn.SetStatus(status)

	if err := s.transport.Hello(ctx, host, s.PeerStatus()); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	if err := s.syncBlocks(ctx, conn); err != nil {
		return fmt.Errorf("blocks: %w", err)
	}

	// The peer holds everything up to its reported head.
	conn.ResetBlocks(status.LatestBlockNumber, status.LatestBlockHash)

	txs, err := s.transport.Mempool(ctx, host)
	if err != nil {
		return fmt.Errorf("mempool: %w", err)
	}

	for _, tx := range txs {
		if err := s.UpsertNodeTransaction(host, tx); err != nil && !errors.Is(err, mempool.ErrAlreadyKnown) {
			s.evHandler("state: handshake: peer[%s]: tx[%s]: %s", host, tx.ID(), err)
		}
	}

	return nil
}

// syncBlocks pulls the blocks above this node's head from the peer and
// commits them in order.
func (s *State) syncBlocks(ctx context.Context, conn *peer.Conn) error {
	from := s.db.Head().Header.Number + 1

	blocks, err := s.transport.Blocks(ctx, conn.Peer.Host, from)
	if err != nil {
		return err
	}

	s.evHandler("state: syncBlocks: peer[%s]: from[%d]: found blocks[%d]", conn.Peer.Host, from, len(blocks))

	for _, blockData := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.ProcessProposedBlock(conn.Peer.Host, blockData); err != nil {
			return err
		}
	}

	return nil
}

// checkPeer validates the peer runs the same chain.
func (s *State) checkPeer(status peer.PeerStatus) error {
	if status.ChainID != s.genesis.ChainID {
		return fmt.Errorf("peer %s on chain %d, exp %d", status.Host, status.ChainID, s.genesis.ChainID)
	}

	if status.GenesisTxID != s.db.GenesisTxID() {
		return fmt.Errorf("peer %s has a different genesis %s", status.Host, status.GenesisTxID)
	}

	return nil
}

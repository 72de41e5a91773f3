package state

import (
	"context"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/peer"
	"golang.org/x/sync/errgroup"
)

// maxFanOut bounds the number of peers called at the same time.
const maxFanOut = 8

// NetShareTxs sends every synced peer the mempool transactions it is not
// known to have, in admission order.
func (s *State) NetShareTxs(ctx context.Context) {
	s.evHandler("state: NetShareTxs: started")
	defer s.evHandler("state: NetShareTxs: completed")

	// CORE NOTE: Bitcoin does not send the full transaction immediately to save
	// on bandwidth. A node will send the transaction's mempool key first so the
	// receiving node can check if they already have the transaction or not.
	// Here the watermark of each connection plays that role and only the
	// transactions missing from it are sent in full.

	ids := s.mempool.IDs()

	s.fanOut(ctx, s.knownPeers.Synced(), func(ctx context.Context, conn *peer.Conn) {
		conn.Retain(ids)

		delta := conn.TxDelta(ids)
		if len(delta) == 0 {
			return
		}

		txs := make([]database.SignedTx, 0, len(delta))
		for _, id := range delta {
			if tx, exists := s.mempool.Get(id); exists {
				txs = append(txs, tx)
			}
		}

		batch := TxBatch{From: s.host, Txs: txs}
		if err := s.transport.SendTxs(ctx, conn.Peer.Host, batch); err != nil {
			s.dropConn(ctx, conn, "sharetx", err)
			return
		}

		conn.MarkTx(delta...)
		prometheusTxsRelayed.Add(float64(len(txs)))

		s.evHandler("state: NetShareTxs: peer[%s]: sent txs[%d]", conn.Peer.Host, len(txs))
	})
}

// NetShareBlocks sends every synced peer the blocks above its watermark in
// order.
func (s *State) NetShareBlocks(ctx context.Context) {
	s.evHandler("state: NetShareBlocks: started")
	defer s.evHandler("state: NetShareBlocks: completed")

	head := s.db.Head().Header.Number

	s.fanOut(ctx, s.knownPeers.Synced(), func(ctx context.Context, conn *peer.Conn) {
		mark, _ := conn.BlockMark()

		for num := mark + 1; num <= head; num++ {
			block, err := s.db.GetBlock(num)
			if err != nil {
				s.evHandler("state: NetShareBlocks: blk[%d]: ERROR: %s", num, err)
				return
			}

			proposal := BlockProposal{From: s.host, Block: database.NewBlockData(block)}
			if err := s.transport.SendBlock(ctx, conn.Peer.Host, proposal); err != nil {
				s.dropConn(ctx, conn, "shareblock", err)
				return
			}

			conn.MarkBlock(num, block.Hash())
			conn.MarkTx(block.TxIDs()...)
			prometheusBlocksRelayed.Inc()

			s.evHandler("state: NetShareBlocks: peer[%s]: sent blk[%d]", conn.Peer.Host, num)
		}
	})
}

// NetSyncPeers refreshes the status of every synced peer, pulls blocks from
// peers that are ahead and retries dropped connections that are due.
func (s *State) NetSyncPeers(ctx context.Context) {
	s.evHandler("state: NetSyncPeers: started")
	defer s.evHandler("state: NetSyncPeers: completed")

	now := time.Now()

	s.fanOut(ctx, s.knownPeers.Conns(), func(ctx context.Context, conn *peer.Conn) {
		switch {
		case conn.IsSynced():
			status, err := s.transport.Status(ctx, conn.Peer.Host)
			if err != nil {
				s.dropConn(ctx, conn, "status", err)
				return
			}
			conn.SetStatus(status)

			if status.LatestBlockNumber <= s.db.Head().Header.Number {
				return
			}

			if err := s.syncBlocks(ctx, conn); err != nil {
				s.dropConn(ctx, conn, "syncblocks", err)
			}

		case conn.Due(now):
			s.handshake(ctx, conn)
		}
	})

	prometheusSyncedPeers.Set(float64(s.knownPeers.CountSynced()))
}

// =============================================================================

// fanOut runs the function for every connection with a bounded number of
// calls in flight and waits for all of them.
func (s *State) fanOut(ctx context.Context, conns []*peer.Conn, fn func(ctx context.Context, conn *peer.Conn)) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)

	for _, conn := range conns {
		g.Go(func() error {
			fn(ctx, conn)
			return nil
		})
	}

	g.Wait()
}

// dropConn records a failed call and moves the connection to disconnected
// so the peer ticker reconnects it later.
func (s *State) dropConn(ctx context.Context, conn *peer.Conn, operation string, err error) {
	wait := conn.Drop(ctx)
	prometheusRelayErrors.WithLabelValues(operation).Inc()
	prometheusSyncedPeers.Set(float64(s.knownPeers.CountSynced()))

	s.evHandler("state: %s: peer[%s]: ERROR: %s: retry in %s", operation, conn.Peer.Host, err, wait)
}

// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ardanlabs/signchain/business/sys/validate"
	"github.com/ardanlabs/signchain/business/web/errs"
	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/peer"
	"github.com/ardanlabs/signchain/foundation/blockchain/state"
	"github.com/ardanlabs/signchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.PeerStatus(), http.StatusOK)
}

// Hello records a peer that connected to this node so the node connects
// back.
func (h Handlers) Hello(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var status peer.PeerStatus
	if err := web.Decode(r, &status); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("hello", "traceid", v.TraceID, "host", status.Host, "blk", status.LatestBlockNumber)

	if err := h.State.AcceptHello(status); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(fmt.Errorf("from %d is greater than to %d", from, to), http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(from, to)

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// ProposeBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var proposal state.BlockProposal
	if err := web.Decode(r, &proposal); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(proposal); err != nil {
		return err
	}

	if err := h.State.ProcessProposedBlock(proposal.From, proposal.Block); err != nil {
		return errs.NewRejected(err, state.RejectReason(err), http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitNodeTransactions runs the transactions relayed by a peer through
// admission. Rejected transactions don't fail the call.
func (h Handlers) SubmitNodeTransactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var batch state.TxBatch
	if err := web.Decode(r, &batch); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(batch); err != nil {
		return err
	}

	rejected := h.State.UpsertNodeTransactions(batch)

	h.Log.Infow("add trans", "traceid", v.TraceID, "from", batch.From, "txs", len(batch.Txs), "rejected", len(rejected))

	resp := struct {
		Rejected map[string]string `json:"rejected"`
	}{
		Rejected: rejected,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Mempool(), http.StatusOK)
}

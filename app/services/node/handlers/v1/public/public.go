// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/signchain/business/sys/validate"
	"github.com/ardanlabs/signchain/business/web/errs"
	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/state"
	"github.com/ardanlabs/signchain/foundation/events"
	"github.com/ardanlabs/signchain/foundation/nameservice"
	"github.com/ardanlabs/signchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// GetInfo returns the summary of the node's view of the chain.
func (h Handlers) GetInfo(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Info(), http.StatusOK)
}

// GetPeerInfo returns the state of every known peer connection.
func (h Handlers) GetPeerInfo(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.ConnStates(), http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// GetBlock returns the block at the specified number.
func (h Handlers) GetBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	num, err := strconv.ParseUint(web.Param(r, "number"), 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(num, num)
	if len(blocks) == 0 {
		return errs.NewTrusted(errors.New("block not found"), http.StatusNotFound)
	}
	blk := blocks[0]

	seals := make([]string, len(blk.Proof))
	for i, seal := range blk.Proof {
		seals[i] = seal.String()
	}

	resp := block{
		Number:        blk.Header.Number,
		Hash:          blk.Hash(),
		PrevBlockHash: blk.Header.PrevBlockHash,
		TimeStamp:     blk.Header.TimeStamp,
		ProducerID:    blk.Header.ProducerID,
		ProducerName:  h.NS.Lookup(blk.Header.ProducerID),
		TransRoot:     blk.Header.TransRoot,
		Seals:         seals,
		Transactions:  blk.Values(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// GetRawMempool returns the ids of the mempool in admission order.
func (h Handlers) GetRawMempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.MempoolIDs(), http.StatusOK)
}

// ListSinceBlock returns the activity of the watched addresses after the
// specified block hash.
func (h Handlers) ListSinceBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	since, err := h.State.ListSinceBlock(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	trans := make([]walletTx, len(since.Transactions))
	for i, tx := range since.Transactions {
		trans[i] = walletTx{WalletTx: tx, Name: h.NS.Lookup(tx.Address)}
	}

	resp := sinceBlock{
		Transactions: trans,
		LastBlock:    since.LastBlock,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ImportAddress watches the address so its outputs can be listed.
func (h Handlers) ImportAddress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req importAddress
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	accountID, err := h.NS.Resolve(req.Address)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	rescanned, err := h.State.ImportAddress(string(accountID))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status    string `json:"status"`
		Rescanned int    `json:"rescanned"`
	}{
		Status:    "watching",
		Rescanned: rescanned,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ListUnspent returns the unspent outputs of a watched address.
func (h Handlers) ListUnspent(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := h.NS.Resolve(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	outputs, err := h.State.ListUnspent(string(accountID))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := make([]unspent, len(outputs))
	for i, out := range outputs {
		resp[i] = unspent{
			Unspent: out,
			Name:    h.NS.Lookup(out.Output.To),
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// GetBalance returns the balance of a watched address.
func (h Handlers) GetBalance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := h.NS.Resolve(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	value, err := h.State.Balance(string(accountID))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := balance{
		Address: string(accountID),
		Name:    h.NS.Lookup(accountID),
		Balance: value,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SendTransaction adds a new wallet transaction to the mempool.
func (h Handlers) SendTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("send tran", "traceid", v.TraceID, "tx", signedTx, "inputs", len(signedTx.Inputs), "outputs", len(signedTx.Outputs))

	id, err := h.State.SubmitWalletTransaction(signedTx)
	if err != nil {
		return rejected(err)
	}

	return web.Respond(ctx, w, txID{TxID: id}, http.StatusOK)
}

// GenerateBlock produces a block from the mempool when the node holds
// enough signer keys.
func (h Handlers) GenerateBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, err := h.State.GenerateBlock(ctx)
	if err != nil {
		return rejected(err)
	}

	resp := generated{
		Hash:   blk.Hash(),
		Number: blk.Header.Number,
		Txs:    blk.TxIDs(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Connect performs the handshake with the specified host.
func (h Handlers) Connect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req connectHost
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	if err := h.State.Connect(ctx, req.Host); err != nil {
		return rejected(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "connected",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// rejected converts the error into the stable reason reported to the client.
func rejected(err error) error {
	reason := state.RejectReason(err)

	switch reason {
	case state.RejectTimeout:
		return errs.NewRejected(err, reason, http.StatusGatewayTimeout)
	case state.RejectNotConnected:
		return errs.NewRejected(err, reason, http.StatusServiceUnavailable)
	}

	return errs.NewRejected(err, reason, http.StatusBadRequest)
}

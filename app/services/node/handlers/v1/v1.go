// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/signchain/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/signchain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/signchain/foundation/blockchain/state"
	"github.com/ardanlabs/signchain/foundation/events"
	"github.com/ardanlabs/signchain/foundation/nameservice"
	"github.com/ardanlabs/signchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/getinfo", pbl.GetInfo)
	app.Handle(http.MethodGet, version, "/getpeerinfo", pbl.GetPeerInfo)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/getblock/:number", pbl.GetBlock)
	app.Handle(http.MethodGet, version, "/getrawmempool", pbl.GetRawMempool)
	app.Handle(http.MethodGet, version, "/listsinceblock", pbl.ListSinceBlock)
	app.Handle(http.MethodGet, version, "/listsinceblock/:hash", pbl.ListSinceBlock)
	app.Handle(http.MethodGet, version, "/listunspent/:address", pbl.ListUnspent)
	app.Handle(http.MethodGet, version, "/getbalance/:address", pbl.GetBalance)
	app.Handle(http.MethodPost, version, "/importaddress", pbl.ImportAddress)
	app.Handle(http.MethodPost, version, "/sendtransaction", pbl.SendTransaction)
	app.Handle(http.MethodPost, version, "/generateblock", pbl.GenerateBlock)
	app.Handle(http.MethodPost, version, "/connect", pbl.Connect)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodPost, version, "/node/hello", prv.Hello)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodPost, version, "/node/block/propose", prv.ProposeBlock)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitNodeTransactions)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
}

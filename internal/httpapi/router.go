package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/manager"
)

// RouterConfig carries every dependency NewRouter needs to wire both HTTP
// surfaces, grounded on the teacher's RouterConfig/NewRouter pattern
// (internal/api/router.go): one struct of dependencies, a *zap.Logger, and
// a constructor that builds a chi router with global middleware applied
// once up front.
type RouterConfig struct {
	Gateway        *manager.Gateway
	ActorNames     []string
	ClientEndpoint string
	AuthToken      string
	Logger         *zap.Logger
}

// NewRouter builds the combined Manager + Actor HTTP surface (SPEC_FULL.md
// §6). The two surfaces name a few identical top-level paths ("/",
// "/health") since in this reference core both roles run in the same
// process; those two paths dispatch on whether the request carries an
// actor selector header (x-rivet-target / x-rivet-actor / x-rivet-actor-
// query), falling through to the Manager variant otherwise. Every other
// path is exclusive to one surface and mounts unconditionally.
func NewRouter(cfg RouterConfig) http.Handler {
	mgr := NewManagerHandler(cfg.Gateway, cfg.ActorNames, cfg.ClientEndpoint, cfg.Logger)
	act := NewActorHandler(cfg.Gateway, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/", sharedPath(act.hasActorSelector, act.Banner, mgr.Banner))
	r.Get("/health", sharedPath(act.hasActorSelector, act.Health, mgr.Health))

	// Manager surface: actor directory, runner bookkeeping. Authenticated
	// the same way the teacher's internal/api/router.go splits a public
	// route group from an authenticated one.
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.AuthToken))
		r.Get("/metadata", mgr.Metadata)
		r.Get("/start", mgr.Start)
		r.Get("/actors", mgr.List)
		r.Put("/actors", mgr.GetOrCreate)
		r.Post("/actors", mgr.Create)
		r.Post("/runners/heartbeat", mgr.RunnerHeartbeat)
	})

	// Actor surface: per-connection and per-action endpoints, resolved
	// against whichever actor the request's handshake names.
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.AuthToken))
		r.Get("/connect/websocket", act.ConnectWebSocket)
		r.Get("/connect/sse", act.ConnectSSE)
		r.Post("/action/{name}", act.Action)
		r.Post("/connections/message", act.ConnectionsMessage)
		r.Handle("/raw/http/*", http.HandlerFunc(act.RawHTTP))
		r.Get("/raw/websocket/*", act.RawWebSocket)
	})

	return r
}

// sharedPath picks between the Actor-surface and Manager-surface handler
// for a path both surfaces name identically, based on whether the request
// carries an actor selector.
func sharedPath(hasSelector func(*http.Request) bool, actorHandler, managerHandler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hasSelector(r) {
			actorHandler(w, r)
			return
		}
		managerHandler(w, r)
	}
}

// hasActorSelector reports whether r names an actor via header, the signal
// the shared "/" and "/health" paths dispatch on (WebSocket upgrades never
// land on these two paths, so the Sec-WebSocket-Protocol tags need not be
// considered here).
func (h *ActorHandler) hasActorSelector(r *http.Request) bool {
	return r.Header.Get("x-rivet-target") != "" ||
		r.Header.Get("x-rivet-actor") != "" ||
		r.Header.Get("x-rivet-actor-query") != ""
}

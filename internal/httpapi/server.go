// Package httpapi serves the HTTP routes for the manifest and MRC, plus
// the /signin WebSocket sign-in state machine, all on one fasthttp.Server:
// a single server multiplexing HTTP and WebSocket over one listener,
// since a WebSocket upgrade (via github.com/fasthttp/websocket) is just
// another fasthttp request handler.
package httpapi

import (
	"context"
	"net"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"github.com/teknology-hub/tek-s3/internal/account"
	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/mrc"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/metrics"
	"github.com/teknology-hub/tek-s3/pkg/shutdown"
)

const maxSigninFrame = 8 * 1024 // RX buffer bound for /signin frames

// Server owns the fasthttp listener and every route handler.
type Server struct {
	store       *catalog.Store
	mrcCache    *mrc.Cache
	engine      *account.Engine
	loginDialer steamcm.LoginDialer
	dial        func(steamID uint64) steamcm.Client
	connWaiter  *shutdown.ConnWaiter

	upgrader websocket.FastHTTPUpgrader
	router   *router
	fasthttp *fasthttp.Server
}

// New wires every route. dial is stored on the Server but no handler
// calls it: the /mrc handler reaches CM clients through mrcCache, which
// holds its own dial function.
func New(store *catalog.Store, mrcCache *mrc.Cache, engine *account.Engine, loginDialer steamcm.LoginDialer, dial func(steamID uint64) steamcm.Client, connWaiter *shutdown.ConnWaiter) *Server {
	s := &Server{
		store:       store,
		mrcCache:    mrcCache,
		engine:      engine,
		loginDialer: loginDialer,
		dial:        dial,
		connWaiter:  connWaiter,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  maxSigninFrame,
			WriteBufferSize: maxSigninFrame,
			CheckOrigin:     func(ctx *fasthttp.RequestCtx) bool { return true },
		},
	}

	r := newRouter()
	r.handle(fasthttp.MethodGet, "/manifest", s.gated(s.handleManifestJSON))
	r.handle(fasthttp.MethodGet, "/manifest-bin", s.gated(s.handleManifestBinary))
	r.handle(fasthttp.MethodGet, "/mrc", s.gated(s.handleMRC))
	r.handle(fasthttp.MethodGet, "/metrics", metrics.Handler())
	r.handle(fasthttp.MethodGet, "/signin", s.handleSignIn)
	s.router = r

	s.fasthttp = &fasthttp.Server{Handler: r.Handler}
	return s
}

// gated wraps a handler with the SETUP -> 503 rule common to every
// manifest/MRC route. /signin and /metrics are exempt: sign-in has to
// work before the fleet is ready, and metrics are ambient, not part of
// the served catalog.
func (s *Server) gated(h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !s.store.Running() {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		h(ctx)
	}
}

// Serve runs the server on an already-bound listener until ctx is
// cancelled, then shuts down gracefully. The caller resolves settings.json's
// listen_endpoint into ln — a plain TCP listener for "host:port", or a Unix
// socket with its mode already applied for "unix:<mode>" — keeping that
// OS-specific bind logic out of this package.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.fasthttp.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		_ = s.fasthttp.Shutdown()
		return nil
	case err := <-errCh:
		return err
	}
}

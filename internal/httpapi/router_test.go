package httpapi

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func TestRouterDispatchesByPathAndMethod(t *testing.T) {
	r := newRouter()
	called := false
	r.handle(fasthttp.MethodGet, "/manifest", func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/manifest")
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	r.Handler(ctx)

	if !called {
		t.Fatal("expected the registered handler to run")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("got status %d, want 200 (fasthttp's implicit default)", ctx.Response.StatusCode())
	}
}

func TestRouterUnknownPathIs404(t *testing.T) {
	r := newRouter()
	r.handle(fasthttp.MethodGet, "/manifest", func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/nope")
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	r.Handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("got %d, want 404", ctx.Response.StatusCode())
	}
}

func TestRouterWrongMethodOnKnownPathIs405(t *testing.T) {
	r := newRouter()
	r.handle(fasthttp.MethodGet, "/manifest", func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/manifest")
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	r.Handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("got %d, want 405", ctx.Response.StatusCode())
	}
}

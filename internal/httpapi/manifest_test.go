package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/teknology-hub/tek-s3/internal/catalog"
)

func newManifestCtx() *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/manifest")
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	return ctx
}

func TestServeManifestSendsBodyAndLastModified(t *testing.T) {
	buf := &catalog.ManifestBuffer{Raw: []byte(`{"apps":[]}`), LastModified: time.Now()}
	s := &Server{}
	ctx := newManifestCtx()

	s.serveManifest(ctx, buf, "application/json; charset=utf-8")

	if ctx.Response.Header.Peek("Last-Modified") == nil {
		t.Fatal("expected a Last-Modified header")
	}
	if string(ctx.Response.Header.ContentType()) != "application/json; charset=utf-8" {
		t.Fatalf("got content type %q", ctx.Response.Header.ContentType())
	}
	if ctx.Response.BodyStream() == nil {
		t.Fatal("expected a streamed body (writeChunked sets SetBodyStreamWriter)")
	}
}

func TestServeManifestHonorsIfModifiedSince(t *testing.T) {
	lastMod := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	buf := &catalog.ManifestBuffer{Raw: []byte("data"), LastModified: lastMod}
	s := &Server{}
	ctx := newManifestCtx()
	ctx.Request.Header.Set("If-Modified-Since", lastMod.Format(http.TimeFormat))

	s.serveManifest(ctx, buf, "application/json; charset=utf-8")

	if ctx.Response.StatusCode() != fasthttp.StatusNotModified {
		t.Fatalf("got %d, want 304 for an unchanged If-Modified-Since", ctx.Response.StatusCode())
	}
}

func TestServeManifestRejectsStaleIfModifiedSince(t *testing.T) {
	buf := &catalog.ManifestBuffer{Raw: []byte("data"), LastModified: time.Now()}
	s := &Server{}
	ctx := newManifestCtx()
	ctx.Request.Header.Set("If-Modified-Since", time.Now().Add(-time.Hour).Format(http.TimeFormat))

	s.serveManifest(ctx, buf, "application/json; charset=utf-8")

	if ctx.Response.StatusCode() == fasthttp.StatusNotModified {
		t.Fatal("a stale If-Modified-Since must not short-circuit to 304")
	}
}

func TestGatedReturns503WhenNotRunning(t *testing.T) {
	store := catalog.NewStore()
	s := &Server{store: store}
	called := false
	h := s.gated(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := newManifestCtx()
	h(ctx)

	if called {
		t.Fatal("handler must not run while the store is not yet Running")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", ctx.Response.StatusCode())
	}
}

func TestGatedPassesThroughWhenRunning(t *testing.T) {
	store := catalog.NewStore()
	store.SetRunning()
	s := &Server{store: store}
	called := false
	h := s.gated(func(ctx *fasthttp.RequestCtx) { called = true })

	h(newManifestCtx())

	if !called {
		t.Fatal("handler must run once the store is Running")
	}
}

package httpapi

import (
	"context"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/mrc"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
)

func mrcCtx(query string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/mrc?" + query)
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	return ctx
}

func TestHandleMRCBadQueryIs400(t *testing.T) {
	s := &Server{}
	ctx := mrcCtx("app_id=notanumber&depot_id=1&manifest_id=1")
	s.handleMRC(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("got %d, want 400", ctx.Response.StatusCode())
	}
}

func TestHandleMRCMissingTokenIs401(t *testing.T) {
	store := catalog.NewStore()
	cache := mrc.NewCache(store, func(steamID uint64) steamcm.Client { return nil })
	s := &Server{store: store, mrcCache: cache}

	ctx := mrcCtx("app_id=10&depot_id=100&manifest_id=12345")
	s.handleMRC(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("got %d, want 401 for a depot with no owning account", ctx.Response.StatusCode())
	}
}

func TestHandleMRCSuccessSetsCacheControlAndBody(t *testing.T) {
	store := catalog.NewStore()
	store.Accounts[1] = &catalog.Account{SteamID: 1, Ready: true}
	store.AssignDepotToAccount(10, 100, 1)

	client := steamcm.NewFakeClient()
	client.MRCFunc = func(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
		return 999, nil
	}
	cache := mrc.NewCache(store, func(steamID uint64) steamcm.Client { return client })
	s := &Server{store: store, mrcCache: cache}

	ctx := mrcCtx("app_id=10&depot_id=100&manifest_id=12345")
	s.handleMRC(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK && ctx.Response.StatusCode() != 0 {
		t.Fatalf("got %d, want a success status", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Body()) != "999" {
		t.Fatalf("got body %q, want %q", ctx.Response.Body(), "999")
	}
	if ctx.Response.Header.Peek("Cache-Control") == nil {
		t.Fatal("expected a Cache-Control header reflecting the MRC's TTL")
	}
}

func TestHandleMRCTimeoutIs504(t *testing.T) {
	store := catalog.NewStore()
	store.Accounts[1] = &catalog.Account{SteamID: 1, Ready: true}
	store.AssignDepotToAccount(10, 100, 1)

	client := steamcm.NewFakeClient()
	client.MRCFunc = func(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
		return 0, steamcm.ErrTimeout
	}
	cache := mrc.NewCache(store, func(steamID uint64) steamcm.Client { return client })
	s := &Server{store: store, mrcCache: cache}

	ctx := mrcCtx("app_id=10&depot_id=100&manifest_id=12345")
	s.handleMRC(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusGatewayTimeout {
		t.Fatalf("got %d, want 504", ctx.Response.StatusCode())
	}
}

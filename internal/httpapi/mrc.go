package httpapi

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/teknology-hub/tek-s3/internal/steamcm"
)

// handleMRC implements GET /mrc?app_id=&depot_id=&manifest_id=: a cache
// hit or dispatched CM fetch returns the decimal MRC as text/plain with a
// Cache-Control reflecting the entry's remaining TTL.
func (s *Server) handleMRC(ctx *fasthttp.RequestCtx) {
	appID, depotID, manifestID, ok := parseMRCQuery(ctx)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	code, evictAt, err := s.mrcCache.Fetch(ctx, appID, depotID, manifestID)
	if err != nil {
		switch err {
		case steamcm.ErrMissingToken:
			ctx.SetStatusCode(fasthttp.StatusUnauthorized) // unknown app/depot: no owning account
		case steamcm.ErrTimeout:
			ctx.SetStatusCode(fasthttp.StatusGatewayTimeout)
		default:
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		}
		return
	}

	maxAge := int(time.Until(evictAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	ctx.Response.Header.Set("Cache-Control", "max-age="+strconv.Itoa(maxAge))
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString(strconv.FormatUint(code, 10))
}

func parseMRCQuery(ctx *fasthttp.RequestCtx) (appID, depotID uint32, manifestID uint64, ok bool) {
	args := ctx.QueryArgs()
	a, err1 := strconv.ParseUint(string(args.Peek("app_id")), 10, 32)
	d, err2 := strconv.ParseUint(string(args.Peek("depot_id")), 10, 32)
	m, err3 := strconv.ParseUint(string(args.Peek("manifest_id")), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return uint32(a), uint32(d), m, true
}

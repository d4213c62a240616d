package httpapi

import (
	"bufio"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/teknology-hub/tek-s3/internal/catalog"
)

const chunkSize = 32 * 1024 // bounded TX buffer for manifest sends

func (s *Server) handleManifestJSON(ctx *fasthttp.RequestCtx) {
	s.serveManifest(ctx, s.store.ManifestJSON(), "application/json; charset=utf-8")
}

func (s *Server) handleManifestBinary(ctx *fasthttp.RequestCtx) {
	s.serveManifest(ctx, s.store.ManifestBinary(), "application/octet-stream")
}

// serveManifest is shared by both manifest routes. buf is a snapshot
// obtained once, up front (catalog.Store.ManifestJSON/ManifestBinary never
// mutates a published buffer — see internal/catalog's copy-on-write
// design) and held for the whole of this call: there's nothing to
// release, since the buffer can't change out from under a reference
// already holding it.
func (s *Server) serveManifest(ctx *fasthttp.RequestCtx, buf *catalog.ManifestBuffer, contentType string) {
	lastMod := buf.LastModified.Truncate(time.Second)
	if ims := ctx.Request.Header.Peek("If-Modified-Since"); len(ims) > 0 {
		if t, err := time.Parse(http.TimeFormat, string(ims)); err == nil && !t.Before(lastMod) {
			ctx.SetStatusCode(fasthttp.StatusNotModified)
			return
		}
	}

	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Last-Modified", lastMod.UTC().Format(http.TimeFormat))
	ctx.SetContentType(contentType)

	accept := string(ctx.Request.Header.Peek("Accept-Encoding"))
	codec, data := negotiate(buf, buf.Raw, accept)
	if codec != "" {
		ctx.Response.Header.Set("Content-Encoding", codec)
	}
	writeChunked(ctx, data)
}

// writeChunked streams data in chunkSize pieces rather than handing the
// whole buffer to fasthttp at once.
func writeChunked(ctx *fasthttp.RequestCtx, data []byte) {
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		for len(data) > 0 {
			n := chunkSize
			if n > len(data) {
				n = len(data)
			}
			if _, err := w.Write(data[:n]); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
			data = data[n:]
		}
	})
}

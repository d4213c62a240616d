package httpapi

import "github.com/valyala/fasthttp"

// router is a minimal method-aware dispatcher. Every tek-s3 route is a
// fixed path with no {param} segments, so there's no segment-matching
// machinery here; what matters is the 404-vs-405 distinction: an unknown
// path is 404, a known path with the wrong method is 405.
type router struct {
	routes map[string]map[string]fasthttp.RequestHandler
}

func newRouter() *router {
	return &router{routes: map[string]map[string]fasthttp.RequestHandler{}}
}

func (r *router) handle(method, path string, h fasthttp.RequestHandler) {
	methods, ok := r.routes[path]
	if !ok {
		methods = map[string]fasthttp.RequestHandler{}
		r.routes[path] = methods
	}
	methods[method] = h
}

func (r *router) Handler(ctx *fasthttp.RequestCtx) {
	methods, ok := r.routes[string(ctx.Path())]
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	h, ok := methods[string(ctx.Method())]
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	h(ctx)
}

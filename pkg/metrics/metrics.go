// Package metrics registers the process's Prometheus collectors: account
// readiness, MRC cache hit/miss, and catalog rebuild counts. It exposes a
// fasthttp-compatible handler for internal/httpapi to mount at /metrics,
// wrapping promhttp.Handler() with fasthttpadaptor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	AccountsReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tek_s3_accounts_ready",
		Help: "Number of federated accounts currently in the READY state.",
	})
	AccountsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tek_s3_accounts_total",
		Help: "Number of federated accounts loaded, regardless of state.",
	})
	MRCHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tek_s3_mrc_cache_hits_total",
		Help: "Manifest request code cache hits.",
	})
	MRCMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tek_s3_mrc_cache_misses_total",
		Help: "Manifest request code cache misses that required a CM round trip.",
	})
	CatalogRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tek_s3_catalog_rebuilds_total",
		Help: "Number of times the manifest buffers were rebuilt from the catalog store.",
	})
	DepotKeyHarvestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tek_s3_depot_key_harvest_errors_total",
		Help: "Depot key harvest failures by error class.",
	}, []string{"class"})
)

func init() {
	prometheus.MustRegister(AccountsReady, AccountsTotal, MRCHits, MRCMisses, CatalogRebuilds, DepotKeyHarvestErrors)
}

// Handler adapts promhttp's stdlib handler for fasthttp's RequestCtx.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

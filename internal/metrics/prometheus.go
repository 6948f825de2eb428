package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the Prometheus metrics for the crawler. They live on a
// private registry so several trackers (e.g. in tests) never collide.
type Collectors struct {
	Registry      *prometheus.Registry
	Fetches       *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	LinksFound    prometheus.Counter
	ProxiesFound  prometheus.Counter
	Flushes       *prometheus.CounterVec
	Round         prometheus.Gauge
	HostDelay     prometheus.Histogram
}

// NewCollectors registers every crawler metric on a new registry
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collectors{
		Registry: reg,
		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyweaver_fetches_total",
			Help: "Page fetches by result.",
		}, []string{"result"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proxyweaver_fetch_duration_seconds",
			Help:    "Duration of page fetches.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
		LinksFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "proxyweaver_links_found_total",
			Help: "Unique absolute links extracted.",
		}),
		ProxiesFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "proxyweaver_proxies_found_total",
			Help: "Unique proxy candidates extracted.",
		}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyweaver_flushes_total",
			Help: "State flushes by result.",
		}, []string{"result"}),
		Round: factory.NewGauge(prometheus.GaugeOpts{
			Name: "proxyweaver_round",
			Help: "Round currently running.",
		}),
		HostDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proxyweaver_host_delay_seconds",
			Help:    "Politeness delay applied before each fetch.",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// ObserveDelay records the delay slept before a fetch
func (t *Tracker) ObserveDelay(ms int) {
	if t.prom != nil {
		t.prom.HostDelay.Observe(float64(ms) / 1000)
	}
}

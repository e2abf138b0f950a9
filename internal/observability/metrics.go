package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics for the relevance and layout engines.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	ActionsTracked      *prometheus.CounterVec
	RelevanceRecomputes prometheus.Counter
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	TickDuration        prometheus.Histogram
	SearchRequests      *prometheus.CounterVec
	PersistenceErrors   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry so tests can build
// as many as they like without duplicate registration.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		ActionsTracked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_tracked_total",
				Help:      "Interaction actions appended to the session log",
			},
			[]string{"type"},
		),
		RelevanceRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_recomputes_total",
			Help:      "Full relevance recomputations",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_cache_hits_total",
			Help:      "Relevance lookups served from cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_cache_misses_total",
			Help:      "Relevance lookups that required recomputation",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "physics_tick_seconds",
			Help:      "Duration of one physics tick",
			Buckets:   []float64{.0001, .0005, .001, .002, .004, .008, .016, .032},
		}),
		SearchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Search requests by outcome",
			},
			[]string{"outcome"},
		),
		PersistenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_errors_total",
				Help:      "Storage failures that fell back to in-memory state",
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		c.ActionsTracked,
		c.RelevanceRecomputes,
		c.CacheHits,
		c.CacheMisses,
		c.TickDuration,
		c.SearchRequests,
		c.PersistenceErrors,
		collectors.NewGoCollector(),
	)
	return c
}

// Handler exposes the registry for scraping.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveAction(actionType string) {
	if c == nil {
		return
	}
	c.ActionsTracked.WithLabelValues(actionType).Inc()
}

func (c *Collector) ObserveRecompute() {
	if c == nil {
		return
	}
	c.RelevanceRecomputes.Inc()
}

func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.CacheHits.Inc()
	} else {
		c.CacheMisses.Inc()
	}
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveSearch(outcome string) {
	if c == nil {
		return
	}
	c.SearchRequests.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObservePersistenceError(op string) {
	if c == nil {
		return
	}
	c.PersistenceErrors.WithLabelValues(op).Inc()
}

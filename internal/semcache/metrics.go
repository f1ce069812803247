package semcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "semcache_hits_total",
		Help:      "Answer cache hits by match mode",
	}, []string{"mode"})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "semcache_misses_total",
		Help:      "Answer cache misses",
	})

	cacheWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "semcache_writes_total",
		Help:      "Answers written to the cache",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "semcache_errors_total",
		Help:      "Cache backend errors by operation",
	}, []string{"op"})

	stampedeCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "semcache_stampede_coalesced_total",
		Help:      "Turns that joined an identical in-flight execution",
	})
)

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmth_cache_operations_total",
			Help: "Cache operations by operation, tier and outcome",
		},
		[]string{"op", "tier", "outcome"},
	)

	backendAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warmth_cache_backend_available",
			Help: "1 when the distributed cache tier is reachable",
		},
	)
)

const (
	tierBackend = "redis"
	tierLocal   = "local"
)

func recordOp(op, tier, outcome string) {
	cacheOperations.WithLabelValues(op, tier, outcome).Inc()
}

func setBackendGauge(up bool) {
	if up {
		backendAvailable.Set(1)
		return
	}
	backendAvailable.Set(0)
}

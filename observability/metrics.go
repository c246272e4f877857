package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics aggregates the counters and histograms recorded around vault
// operations.
type VaultMetrics struct {
	Operations   *prometheus.CounterVec
	Liquidations prometheus.Counter
	HealthFactor prometheus.Histogram
	RPCLatency   *prometheus.HistogramVec
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// Vault returns the lazily-initialised vault metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "zkusd",
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Total vault operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			Liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "zkusd",
				Subsystem: "vault",
				Name:      "liquidations_total",
				Help:      "Total completed liquidations.",
			}),
			HealthFactor: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "zkusd",
				Subsystem: "vault",
				Name:      "health_factor",
				Help:      "Observed health factors on successful reads, capped at 1000.",
				Buckets:   []float64{50, 75, 90, 100, 110, 125, 150, 200, 400, 1000},
			}),
			RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "zkusd",
				Subsystem: "rpc",
				Name:      "request_seconds",
				Help:      "JSON-RPC request latency segmented by method.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			vaultRegistry.Operations,
			vaultRegistry.Liquidations,
			vaultRegistry.HealthFactor,
			vaultRegistry.RPCLatency,
		)
	})
	return vaultRegistry
}

// RecordOperation increments the operation counter for the given outcome.
func (m *VaultMetrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

// ObserveHealthFactor records a health factor reading, clamping the sentinel
// value into the top bucket.
func (m *VaultMetrics) ObserveHealthFactor(hf uint64) {
	if m == nil {
		return
	}
	const maxObserved = 1000
	if hf > maxObserved {
		hf = maxObserved
	}
	m.HealthFactor.Observe(float64(hf))
}

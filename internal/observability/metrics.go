package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowlens"

var (
	// cacheLookups counts model cache lookups by result (hit, miss, stale).
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Model cache lookups by result",
	}, []string{"result"})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Models evicted by the LRU policy",
	})

	cacheModels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "models",
		Help:      "Models currently held in the cache",
	})

	// oracleRequests counts oracle calls by outcome (ok, timeout, error,
	// panic, malformed, disabled).
	oracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oracle_requests_total",
		Help:      "Opinion oracle requests by outcome",
	}, []string{"outcome"})

	optimizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "optimize_duration_seconds",
		Help:      "Wall time of an optimization run",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"cache"})

	findings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_total",
		Help:      "Pattern findings by category and severity",
	}, []string{"category", "severity"})

	appliedOptimizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "applied_optimizations_total",
		Help:      "Optimizations applied by type",
	}, []string{"type"})
)

// CacheLookup records a cache lookup result.
func CacheLookup(result string) { cacheLookups.WithLabelValues(result).Inc() }

// CacheEvicted records n evictions.
func CacheEvicted(n int) { cacheEvictions.Add(float64(n)) }

// CacheSize sets the current model count.
func CacheSize(n int) { cacheModels.Set(float64(n)) }

// OracleOutcome records the outcome of one oracle call.
func OracleOutcome(outcome string) { oracleRequests.WithLabelValues(outcome).Inc() }

// ObserveOptimize records the duration of an optimization run.
func ObserveOptimize(d time.Duration, cacheHit bool) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	optimizeDuration.WithLabelValues(label).Observe(d.Seconds())
}

// FindingDetected records one finding.
func FindingDetected(category, severity string) {
	findings.WithLabelValues(category, severity).Inc()
}

// OptimizationApplied records one applied optimization.
func OptimizationApplied(kind string) { appliedOptimizations.WithLabelValues(kind).Inc() }

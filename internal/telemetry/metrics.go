package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency, labeled by the matched
// route pattern rather than the raw path so cardinality stays bounded.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "confcore",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// SweepTokensRevokedTotal counts tokens revoked by the background sweep,
// split by the reason the sweep found them (expired vs inactive).
var SweepTokensRevokedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "confcore",
		Subsystem: "sweep",
		Name:      "tokens_revoked_total",
		Help:      "Total number of tokens revoked by the background sweep, by reason.",
	},
	[]string{"reason"},
)

// SweepRunsTotal counts completed sweep passes.
var SweepRunsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "confcore",
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Total number of background sweep passes completed.",
	},
)

// DecryptFailuresTotal counts envelope decryption failures, split by kind
// (unknown_key vs tamper_detected). A sustained rise here should page.
var DecryptFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "confcore",
		Subsystem: "crypto",
		Name:      "decrypt_failures_total",
		Help:      "Total number of envelope decryption failures, by kind.",
	},
	[]string{"kind"},
)

// IdentityResolutionsTotal counts bearer resolution attempts by outcome,
// feeding the abuse-defense rate limiter's effectiveness signal.
var IdentityResolutionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "confcore",
		Subsystem: "identity",
		Name:      "resolutions_total",
		Help:      "Total number of bearer identity resolutions, by outcome.",
	},
	[]string{"outcome"},
)

// All returns the confcore-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		SweepTokensRevokedTotal,
		SweepRunsTotal,
		DecryptFailuresTotal,
		IdentityResolutionsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors
// plus every confcore metric.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}

// Package metrics provides the centralized Prometheus metrics registry for
// the coaching pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	EngineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "engine_runs_total",
		Help:      "Total number of verification engine invocations",
	}, []string{"mode"})
	EngineFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "engine_failures_total",
		Help:      "Total number of failed engine invocations",
	})
	EngineTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "engine_timeouts_total",
		Help:      "Total number of engine invocations killed by timeout",
	})
	FallbackAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "fallback_attempts_total",
		Help:      "Total number of mono compatibility fallback attempts",
	})
	ParseFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "parse_failures_total",
		Help:      "Total number of engine outputs with no parseable probability",
	})
	PredictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "predictions_total",
		Help:      "Total number of completed predictions",
	})
	StrategySearchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "strategy_searches_total",
		Help:      "Total number of completed strategy searches",
	})
	CandidatesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rally_coach",
		Name:      "candidates_dropped_total",
		Help:      "Total number of strategy candidates dropped on engine failure",
	})
)

// Gauge metrics
var (
	LastProbability = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rally_coach",
		Name:      "last_probability",
		Help:      "Probability computed by the most recent engine run",
	})
)

// Histogram metrics
var (
	EngineRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rally_coach",
		Name:      "engine_run_duration_seconds",
		Help:      "Duration of engine invocations in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(EngineRunsTotal)
		registry.MustRegister(EngineFailuresTotal)
		registry.MustRegister(EngineTimeoutsTotal)
		registry.MustRegister(FallbackAttemptsTotal)
		registry.MustRegister(ParseFailuresTotal)
		registry.MustRegister(PredictionsTotal)
		registry.MustRegister(StrategySearchesTotal)
		registry.MustRegister(CandidatesDroppedTotal)

		registry.MustRegister(LastProbability)

		registry.MustRegister(EngineRunDuration)
	})
	return registry
}

// Serve exposes the registry over HTTP at the given port and path.
func Serve(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(InitRegistry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exammarker",
			Name:      "provider_requests_total",
			Help:      "Total grading provider requests by provider, model and result",
		},
		[]string{"provider", "model", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exammarker",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of grading provider requests by provider and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exammarker",
			Name:      "jobs_processed_total",
			Help:      "Total grading jobs processed by result (success, degraded, failed, dlq)",
		},
		[]string{"result"},
	)

	placementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exammarker",
			Name:      "placements_total",
			Help:      "Annotations placed, labeled by strategy",
		},
		[]string{"strategy"},
	)

	gateIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exammarker",
			Name:      "quality_gate_issues_total",
			Help:      "Quality gate issues by kind",
		},
		[]string{"kind"},
	)

	gateAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "exammarker",
			Name:      "placement_attempts",
			Help:      "Plan/validate attempts needed per document",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "exammarker",
			Name:      "retries_total",
			Help:      "Total number of job retries",
		},
	)

	breakerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exammarker",
			Name:      "breaker_events_total",
			Help:      "Circuit breaker events by provider, model and action",
		},
		[]string{"provider", "model", "action"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "exammarker",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream, delayed and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(providerReqs, providerLatency, jobsProcessed, placementsTotal, gateIssues, gateAttempts, retriesTotal, breakerEvents, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProvider(provider, model, result string, dur time.Duration) {
	providerReqs.WithLabelValues(provider, model, result).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncProcessed(result string)   { jobsProcessed.WithLabelValues(result).Inc() }
func IncRetry()                    { retriesTotal.Inc() }
func IncPlacement(strategy string) { placementsTotal.WithLabelValues(strategy).Inc() }
func IncGateIssue(kind string)     { gateIssues.WithLabelValues(kind).Inc() }
func ObserveAttempts(n int)        { gateAttempts.Observe(float64(n)) }

func BreakerOpened(provider, model string) {
	breakerEvents.WithLabelValues(provider, model, "opened").Inc()
}
func BreakerClosed(provider, model string) {
	breakerEvents.WithLabelValues(provider, model, "closed").Inc()
}

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

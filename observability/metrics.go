package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FundMetrics records workflow activity for the fund engine.
type FundMetrics struct {
	workflows      *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	degradedQuotes prometheus.Counter
	snapshotAge    prometheus.Gauge
}

var (
	fundMetricsOnce sync.Once
	fundRegistry    *FundMetrics
)

// Fund returns the lazily-initialised fund metrics registry.
func Fund() *FundMetrics {
	fundMetricsOnce.Do(func() {
		fundRegistry = &FundMetrics{
			workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "basketfund",
				Subsystem: "workflow",
				Name:      "runs_total",
				Help:      "Total workflow runs segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "basketfund",
				Subsystem: "workflow",
				Name:      "duration_seconds",
				Help:      "Latency distribution of workflow runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			degradedQuotes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "basketfund",
				Subsystem: "workflow",
				Name:      "degraded_quotes_total",
				Help:      "Quote legs that failed and contributed zero to a valuation.",
			}),
			snapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "basketfund",
				Subsystem: "snapshot",
				Name:      "last_refresh_timestamp_seconds",
				Help:      "Unix time of the last completed snapshot refresh.",
			}),
		}
		prometheus.MustRegister(
			fundRegistry.workflows,
			fundRegistry.latency,
			fundRegistry.degradedQuotes,
			fundRegistry.snapshotAge,
		)
	})
	return fundRegistry
}

// ObserveWorkflow records one completed workflow run.
func (m *FundMetrics) ObserveWorkflow(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	kind = normalizeLabel(kind, "unknown")
	m.workflows.WithLabelValues(kind, normalizeLabel(outcome, "unknown")).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddDegradedQuotes counts tolerated quote-leg failures.
func (m *FundMetrics) AddDegradedQuotes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.degradedQuotes.Add(float64(n))
}

// MarkSnapshotRefresh stamps the snapshot freshness gauge.
func (m *FundMetrics) MarkSnapshotRefresh(at time.Time) {
	if m == nil {
		return
	}
	m.snapshotAge.Set(float64(at.Unix()))
}

func normalizeLabel(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

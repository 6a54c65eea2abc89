// Package metrics exposes the engine's Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shelfwatch/backend/internal/domain"
)

const (
	// Namespace is the namespace for all engine metrics.
	Namespace = "shelfwatch"

	subsystemExtraction = "extraction"
	subsystemResolver   = "resolver"
	subsystemRuns       = "runs"
	subsystemReview     = "review"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Extraction cascade
	AttemptsTotal    *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	CostTotal        *prometheus.CounterVec
	CacheLookupTotal *prometheus.CounterVec

	// Resolver
	ClassificationsTotal *prometheus.CounterVec
	PriceChangesTotal    *prometheus.CounterVec

	// Runs
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	ReviewDecisions *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initExtractionMetrics(factory)
	m.initResolverMetrics(factory)
	m.initRunMetrics(factory)

	return m
}

func (m *Metrics) initExtractionMetrics(factory promauto.Factory) {
	m.AttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemExtraction,
			Name:      "attempts_total",
			Help:      "Provider invocations by outcome",
		},
		[]string{"retailer", "provider", "outcome"},
	)

	m.AttemptDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemExtraction,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of provider invocations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"provider"},
	)

	m.CostTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemExtraction,
			Name:      "cost_total",
			Help:      "Provider cost charged, in cost units",
		},
		[]string{"retailer", "provider"},
	)

	m.CacheLookupTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemExtraction,
			Name:      "cache_lookups_total",
			Help:      "Extraction cache lookups by result",
		},
		[]string{"result"},
	)
}

func (m *Metrics) initResolverMetrics(factory promauto.Factory) {
	m.ClassificationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemResolver,
			Name:      "classifications_total",
			Help:      "Candidates classified, by match level and classification",
		},
		[]string{"retailer", "level", "classification"},
	)

	m.PriceChangesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemResolver,
			Name:      "price_changes_total",
			Help:      "Price changes queued for update",
		},
		[]string{"retailer", "priority"},
	)
}

func (m *Metrics) initRunMetrics(factory promauto.Factory) {
	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemRuns,
			Name:      "total",
			Help:      "Monitor runs by pass and final status",
		},
		[]string{"retailer", "pass", "status"},
	)

	m.RunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemRuns,
			Name:      "duration_seconds",
			Help:      "Duration of monitor runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		},
		[]string{"retailer", "pass"},
	)

	m.ReviewDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemReview,
			Name:      "decisions_total",
			Help:      "Review decisions by item kind",
		},
		[]string{"kind", "decision"},
	)
}

// ObserveAttempt records one provider invocation
func (m *Metrics) ObserveAttempt(retailer, provider string, outcome domain.AttemptOutcome, cost float64, d time.Duration) {
	m.AttemptsTotal.WithLabelValues(retailer, provider, string(outcome)).Inc()
	m.AttemptDuration.WithLabelValues(provider).Observe(d.Seconds())
	if cost > 0 {
		m.CostTotal.WithLabelValues(retailer, provider).Add(cost)
	}
}

// ObserveCacheLookup records an extraction cache hit or miss
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupTotal.WithLabelValues(result).Inc()
}

// ObserveClassification records a resolver verdict
func (m *Metrics) ObserveClassification(retailer string, level domain.MatchLevel, class domain.Classification) {
	lvl := string(level)
	if lvl == "" {
		lvl = "none"
	}
	m.ClassificationsTotal.WithLabelValues(retailer, lvl, string(class)).Inc()
}

// ObservePriceChange records a queued price change
func (m *Metrics) ObservePriceChange(retailer string, priority domain.UpdatePriority) {
	m.PriceChangesTotal.WithLabelValues(retailer, string(priority)).Inc()
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(retailer string, pass domain.Pass, status domain.RunStatus, d time.Duration) {
	m.RunsTotal.WithLabelValues(retailer, string(pass), string(status)).Inc()
	m.RunDuration.WithLabelValues(retailer, string(pass)).Observe(d.Seconds())
}

// ObserveReviewDecision records a posted review decision
func (m *Metrics) ObserveReviewDecision(kind domain.ReviewKind, decision domain.Decision) {
	m.ReviewDecisions.WithLabelValues(string(kind), string(decision)).Inc()
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/backend/internal/domain"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveAttempt("selfridges", domain.ProviderJSONAPI, domain.AttemptAccepted, 0.002, 120*time.Millisecond)
	m.ObserveCacheLookup(true)
	m.ObserveClassification("selfridges", domain.LevelNone, domain.ClassNew)
	m.ObservePriceChange("selfridges", domain.PriorityHigh)
	m.ObserveRun("selfridges", domain.PassMonitor, domain.RunCompleted, time.Minute)
	m.ObserveReviewDecision(domain.ReviewDuplicate, domain.DecisionNew)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"shelfwatch_extraction_attempts_total",
		"shelfwatch_extraction_cost_total",
		"shelfwatch_extraction_cache_lookups_total",
		"shelfwatch_resolver_classifications_total",
		"shelfwatch_resolver_price_changes_total",
		"shelfwatch_runs_total",
		"shelfwatch_runs_duration_seconds",
		"shelfwatch_review_decisions_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAttempt("selfridges", domain.ProviderBrowser, domain.AttemptRejected, 0.05, time.Second)
	m.ObserveAttempt("selfridges", domain.ProviderBrowser, domain.AttemptRejected, 0.05, time.Second)
	m.ObserveAttempt("selfridges", domain.ProviderBrowser, domain.AttemptAccepted, 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("selfridges", domain.ProviderBrowser, "rejected")))
	assert.InDelta(t, 0.1, testutil.ToFloat64(m.CostTotal.WithLabelValues("selfridges", domain.ProviderBrowser)), 1e-9)

	m.ObserveClassification("selfridges", domain.LevelNone, domain.ClassNew)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("selfridges", "none", "new")))
}

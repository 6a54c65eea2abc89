package usecase

import (
	"time"

	"github.com/shelfwatch/backend/internal/domain"
)

// Metrics receives engine events. The prometheus implementation lives in
// infrastructure/metrics.
type Metrics interface {
	ObserveAttempt(retailer, provider string, outcome domain.AttemptOutcome, cost float64, d time.Duration)
	ObserveCacheLookup(hit bool)
	ObserveClassification(retailer string, level domain.MatchLevel, class domain.Classification)
	ObservePriceChange(retailer string, priority domain.UpdatePriority)
	ObserveRun(retailer string, pass domain.Pass, status domain.RunStatus, d time.Duration)
	ObserveReviewDecision(kind domain.ReviewKind, decision domain.Decision)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) ObserveAttempt(string, string, domain.AttemptOutcome, float64, time.Duration) {}
func (NopMetrics) ObserveCacheLookup(bool)                                                      {}
func (NopMetrics) ObserveClassification(string, domain.MatchLevel, domain.Classification)       {}
func (NopMetrics) ObservePriceChange(string, domain.UpdatePriority)                             {}
func (NopMetrics) ObserveRun(string, domain.Pass, domain.RunStatus, time.Duration)              {}
func (NopMetrics) ObserveReviewDecision(domain.ReviewKind, domain.Decision)                     {}

package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode selects what an extraction is expected to return
type Mode string

const (
	ModeCatalog Mode = "catalog"
	ModeSingle  Mode = "single"
)

// Provider names understood by the cascade
const (
	ProviderJSONAPI    = "json_api"
	ProviderStaticHTML = "static_html"
	ProviderBrowser    = "browser"
)

// Target is what a provider is asked to extract
type Target struct {
	URL         string `json:"url"`
	Retailer    string `json:"retailer"`
	Category    string `json:"category,omitempty"`
	Page        int    `json:"page,omitempty"`
	ScrollSteps int    `json:"scroll_steps,omitempty"`
}

// Payload is raw provider output before validation.
// Catalog mode fills Candidates, single mode fills Detail.
type Payload struct {
	Candidates []Candidate    `json:"candidates,omitempty"`
	Detail     *ProductDetail `json:"detail,omitempty"`
	Dropped    int            `json:"dropped,omitempty"`
}

// Provider is one tier of the extraction cascade
type Provider interface {
	Name() string
	// Cost is charged for every invocation, successful or not.
	Cost() float64
	Attempt(ctx context.Context, target Target, mode Mode) (*Payload, error)
}

// AttemptOutcome is the result of one provider invocation
type AttemptOutcome string

const (
	AttemptAccepted AttemptOutcome = "accepted"
	AttemptRejected AttemptOutcome = "rejected"
	AttemptError    AttemptOutcome = "error"
)

// Attempt is one entry in the cascade's diagnostic trail
type Attempt struct {
	Provider string         `json:"provider"`
	Outcome  AttemptOutcome `json:"outcome"`
	Reason   string         `json:"reason,omitempty"`
	Cost     float64        `json:"cost"`
	Duration time.Duration  `json:"duration"`
}

// ExtractionResult is an accepted cascade output
type ExtractionResult struct {
	Payload  *Payload  `json:"payload"`
	Provider string    `json:"provider"`
	Attempts []Attempt `json:"attempts"`
	Cost     float64   `json:"cost"`
	Cached   bool      `json:"cached,omitempty"`
}

// ExtractionFailure is returned when no provider produced valid output.
// It carries the full per-provider trail.
type ExtractionFailure struct {
	Target   Target
	Mode     Mode
	Attempts []Attempt
	Cost     float64
}

func (f *ExtractionFailure) Error() string {
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", a.Provider, a.Outcome, a.Reason))
	}
	return fmt.Sprintf("%s: %s %s [%s]", ErrExtractionExhausted, f.Mode, f.Target.URL, strings.Join(parts, "; "))
}

func (f *ExtractionFailure) Unwrap() error {
	return ErrExtractionExhausted
}

// PatternField is a field tracked by the pattern learner
type PatternField string

const (
	FieldRecord PatternField = "record"
	FieldTitle  PatternField = "title"
	FieldPrice  PatternField = "price"
	FieldImages PatternField = "images"
	FieldStock  PatternField = "stock"
)

// PatternStats is a success counter for one (retailer, provider, field)
type PatternStats struct {
	Retailer  string       `json:"retailer"`
	Provider  string       `json:"provider"`
	Field     PatternField `json:"field"`
	Attempts  int64        `json:"attempts"`
	Successes int64        `json:"successes"`
}

// SuccessRate returns the Laplace smoothed success rate
func (s PatternStats) SuccessRate() float64 {
	return float64(s.Successes+1) / float64(s.Attempts+2)
}

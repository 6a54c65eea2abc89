package domain

import "time"

// MatchLevel names the resolver strategy that produced a match
type MatchLevel string

const (
	LevelNone            MatchLevel = ""
	LevelExactURL        MatchLevel = "exact_url"
	LevelNormalizedURL   MatchLevel = "normalized_url"
	LevelProductCode     MatchLevel = "product_code"
	LevelImageURL        MatchLevel = "image_url"
	LevelTitlePriceFuzzy MatchLevel = "title_price_fuzzy"
	LevelFuzzyTitleOnly  MatchLevel = "fuzzy_title_only"
)

// Fixed confidence values and ranges per match level.
const (
	ConfidenceExactURL      = 1.0
	ConfidenceNormalizedURL = 0.98
	ConfidenceProductCode   = 0.95
	ConfidenceImageURL      = 0.90

	ConfidenceTitlePriceMin = 0.85
	ConfidenceTitlePriceMax = 0.95
	ConfidenceTitleOnlyMin  = 0.80
	ConfidenceTitleOnlyMax  = 0.90
)

// Classification is the resolver outcome for a candidate
type Classification string

const (
	ClassNew                Classification = "new"
	ClassSuspectedDuplicate Classification = "suspected_duplicate"
	ClassConfirmedExisting  Classification = "confirmed_existing"
)

// MatchResult is the resolver verdict for one candidate.
// MatchedBaseline is set when the match came from the active snapshot.
type MatchResult struct {
	Candidate        Candidate         `json:"candidate"`
	MatchedCanonical *CanonicalProduct `json:"matched_canonical,omitempty"`
	MatchedBaseline  *Candidate        `json:"matched_baseline,omitempty"`
	Level            MatchLevel        `json:"match_level,omitempty"`
	Confidence       float64           `json:"confidence"`
	Classification   Classification    `json:"classification"`
	Similarity       float64           `json:"similarity,omitempty"`
	PriceChange      *UpdateQueueEntry `json:"price_change,omitempty"`
}

// UpdatePriority orders entries in the update queue
type UpdatePriority string

const (
	PriorityHigh   UpdatePriority = "high"
	PriorityNormal UpdatePriority = "normal"
)

// UpdateQueueEntry records a detected price change on a matched product
type UpdateQueueEntry struct {
	ID          string         `json:"id"`
	CanonicalID string         `json:"canonical_id,omitempty"`
	ProductURL  string         `json:"product_url"`
	Retailer    string         `json:"retailer"`
	Priority    UpdatePriority `json:"priority"`
	Reason      string         `json:"reason"`
	OldPrice    float64        `json:"old_price"`
	NewPrice    float64        `json:"new_price"`
	DetectedAt  time.Time      `json:"detected_at"`
}

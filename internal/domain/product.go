package domain

import (
	"fmt"
	"time"
)

// StockStatus is the availability reported for a product detail page
type StockStatus string

const (
	StockInStock      StockStatus = "in_stock"
	StockOutOfStock   StockStatus = "out_of_stock"
	StockLowStock     StockStatus = "low_stock"
	StockPreorder     StockStatus = "preorder"
	StockDiscontinued StockStatus = "discontinued"
)

// Valid reports whether s is one of the known stock states
func (s StockStatus) Valid() bool {
	switch s {
	case StockInStock, StockOutOfStock, StockLowStock, StockPreorder, StockDiscontinued:
		return true
	}
	return false
}

// Candidate is one scraped catalog row. It is never stored on its own,
// only inside snapshot rows and review items.
type Candidate struct {
	URL                string      `json:"url"`
	NormalizedURL      string      `json:"normalized_url"`
	Retailer           string      `json:"retailer"`
	Category           string      `json:"category"`
	Title              string      `json:"title"`
	Price              float64     `json:"price"`
	OriginalPrice      float64     `json:"original_price,omitempty"`
	ProductCode        string      `json:"product_code,omitempty"`
	ImageURLs          []string    `json:"image_urls,omitempty"`
	StockStatus        StockStatus `json:"stock_status,omitempty"`
	DiscoveredAt       time.Time   `json:"discovered_at"`
	ExtractionProvider string      `json:"extraction_provider,omitempty"`
}

// PrimaryImage returns the first image URL, or "" when there is none
func (c Candidate) PrimaryImage() string {
	if len(c.ImageURLs) == 0 {
		return ""
	}
	return c.ImageURLs[0]
}

// ProductDetail is the full record returned by a single-mode extraction
type ProductDetail struct {
	URL           string      `json:"url"`
	Title         string      `json:"title"`
	Price         float64     `json:"price"`
	OriginalPrice float64     `json:"original_price,omitempty"`
	ProductCode   string      `json:"product_code,omitempty"`
	ImageURLs     []string    `json:"image_urls"`
	StockStatus   StockStatus `json:"stock_status"`
	Description   string      `json:"description,omitempty"`
}

// ExternalStatus tracks a product in the downstream publishing system
type ExternalStatus string

const (
	ExternalNotUploaded ExternalStatus = "not_uploaded"
	ExternalDraft       ExternalStatus = "draft"
	ExternalPublished   ExternalStatus = "published"
)

// LifecycleStage is the canonical product state machine
type LifecycleStage string

const (
	StageDiscovered        LifecycleStage = "discovered"
	StagePendingAssessment LifecycleStage = "pending_assessment"
	StageAssessedModest    LifecycleStage = "assessed_modest"
	StageAssessedRejected  LifecycleStage = "assessed_rejected"
	StagePublished         LifecycleStage = "published"
	StageArchived          LifecycleStage = "archived"
)

// lifecycleTransitions lists the forward moves allowed from each stage.
// Archival is handled separately: any non-archived stage may be archived.
var lifecycleTransitions = map[LifecycleStage][]LifecycleStage{
	StageDiscovered:        {StagePendingAssessment},
	StagePendingAssessment: {StageAssessedModest, StageAssessedRejected},
	StageAssessedModest:    {StagePublished},
	StageAssessedRejected:  nil,
	StagePublished:         nil,
}

// Valid reports whether s is a known stage
func (s LifecycleStage) Valid() bool {
	_, ok := lifecycleTransitions[s]
	return ok || s == StageArchived
}

// CanTransition reports whether a product may move from one stage to another
func CanTransition(from, to LifecycleStage) bool {
	if from == StageArchived {
		return false
	}
	if to == StageArchived {
		return from.Valid()
	}
	for _, next := range lifecycleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanonicalProduct is the durable, deduplicated record of a listing.
// Rows are never deleted; archival moves LifecycleStage to archived.
type CanonicalProduct struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	NormalizedURL  string         `json:"normalized_url"`
	Retailer       string         `json:"retailer"`
	Category       string         `json:"category"`
	Title          string         `json:"title"`
	Price          float64        `json:"price"`
	ProductCode    string         `json:"product_code,omitempty"`
	ImageURLs      []string       `json:"image_urls,omitempty"`
	ExternalID     string         `json:"external_id,omitempty"`
	ExternalStatus ExternalStatus `json:"external_status"`
	LifecycleStage LifecycleStage `json:"lifecycle_stage"`
	// BaselineInventory marks products first recorded by a baseline pass.
	// They are existing stock and are never queued for assessment.
	BaselineInventory bool      `json:"baseline_inventory"`
	FirstSeen         time.Time `json:"first_seen"`
	LastUpdated       time.Time `json:"last_updated"`
}

// PrimaryImage returns the first image URL, or "" when there is none
func (p CanonicalProduct) PrimaryImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// Transition moves the product to the given stage or returns ErrInvalidTransition
func (p *CanonicalProduct) Transition(to LifecycleStage, at time.Time) error {
	if !CanTransition(p.LifecycleStage, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.LifecycleStage, to)
	}
	p.LifecycleStage = to
	p.LastUpdated = at
	return nil
}

// CanonicalFilter narrows canonical product listings
type CanonicalFilter struct {
	Retailer string
	Category string
	Stage    LifecycleStage
	Limit    int
	Offset   int
}

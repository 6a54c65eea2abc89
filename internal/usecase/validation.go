package usecase

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/retailer"
)

// Validation limits
const (
	minTitleLength    = 5
	maxTitleLength    = 200
	minDetailImages   = 2
	defaultValidRatio = 0.8
)

// titlePlaceholderTerms are substrings that mark a scraped title as template output
var titlePlaceholderTerms = []string{
	"lorem ipsum", "placeholder", "product title", "product name",
	"{{", "}}", "undefined", "[object object]", "loading...", "untitled",
}

// titlePlaceholderExact are whole titles that carry no information
var titlePlaceholderExact = map[string]bool{
	"n a": true, "null": true, "none": true, "tbd": true, "title": true,
	"product": true, "loading": true, "test product": true, "item": true,
}

// imagePlaceholderTerms are substrings of stock "no image" URLs
var imagePlaceholderTerms = []string{
	"placeholder", "no-image", "no_image", "noimage", "coming-soon",
	"coming_soon", "spacer.gif", "blank.gif", "pixel.gif", "transparent.png",
	"default-image", "default_image", "data:image",
}

// FieldReport records which pattern-learner fields passed validation
type FieldReport map[domain.PatternField]bool

// ValidationReport is the verdict on one provider payload
type ValidationReport struct {
	Accepted bool
	Reason   string
	Fields   FieldReport
	Payload  *domain.Payload
}

// placeholderSet is an Aho-Corasick dictionary. Matcher is not safe for
// concurrent use, so matches go through the mutex.
type placeholderSet struct {
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
}

func newPlaceholderSet(terms []string) *placeholderSet {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &placeholderSet{matcher: ahocorasick.NewStringMatcher(lowered)}
}

func (p *placeholderSet) contains(s string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.matcher.Match([]byte(strings.ToLower(s)))) > 0
}

type retailerPlaceholders struct {
	titles *placeholderSet
	images *placeholderSet
}

// Validator gates provider output before the cascade accepts it
type Validator struct {
	minValidRatio float64
	normalizer    *TitleNormalizer

	mu       sync.Mutex
	byRetail map[string]*retailerPlaceholders
}

// NewValidator creates a validator. Catalog batches are accepted when at
// least minValidRatio of rows carry a valid title and price.
func NewValidator(minValidRatio float64) *Validator {
	if minValidRatio <= 0 || minValidRatio > 1 {
		minValidRatio = defaultValidRatio
	}
	return &Validator{
		minValidRatio: minValidRatio,
		normalizer:    NewTitleNormalizer(),
		byRetail:      make(map[string]*retailerPlaceholders),
	}
}

func (v *Validator) placeholders(profile *retailer.Profile) *retailerPlaceholders {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ph, ok := v.byRetail[profile.Name]; ok {
		return ph
	}
	ph := &retailerPlaceholders{
		titles: newPlaceholderSet(append(append([]string{}, titlePlaceholderTerms...), profile.PlaceholderTerms...)),
		images: newPlaceholderSet(append(append([]string{}, imagePlaceholderTerms...), profile.PlaceholderTerms...)),
	}
	v.byRetail[profile.Name] = ph
	return ph
}

// Validate checks a payload for the given mode
func (v *Validator) Validate(target domain.Target, mode domain.Mode, payload *domain.Payload, profile *retailer.Profile) ValidationReport {
	if payload == nil {
		return ValidationReport{Reason: "empty payload", Fields: FieldReport{domain.FieldRecord: false}}
	}
	ph := v.placeholders(profile)
	if mode == domain.ModeSingle {
		return v.validateSingle(payload, ph)
	}
	return v.validateCatalog(target, payload, ph)
}

func (v *Validator) validateCatalog(target domain.Target, payload *domain.Payload, ph *retailerPlaceholders) ValidationReport {
	total := len(payload.Candidates)
	if total == 0 {
		// An empty page past the first one is the end of the catalog
		if target.Page > 1 {
			return ValidationReport{
				Accepted: true,
				Fields:   FieldReport{domain.FieldRecord: true},
				Payload:  &domain.Payload{},
			}
		}
		return ValidationReport{Reason: "empty listing", Fields: FieldReport{domain.FieldRecord: false}}
	}

	kept := make([]domain.Candidate, 0, total)
	titlesOK, pricesOK := 0, 0
	for _, row := range payload.Candidates {
		titleOK := v.validTitle(row.Title, ph)
		priceOK := row.Price > 0
		if titleOK {
			titlesOK++
		}
		if priceOK {
			pricesOK++
		}
		if titleOK && priceOK && strings.TrimSpace(row.URL) != "" {
			kept = append(kept, row)
		}
	}

	ratio := float64(len(kept)) / float64(total)
	report := ValidationReport{
		Accepted: ratio >= v.minValidRatio,
		Fields: FieldReport{
			domain.FieldTitle: float64(titlesOK)/float64(total) >= v.minValidRatio,
			domain.FieldPrice: float64(pricesOK)/float64(total) >= v.minValidRatio,
		},
	}
	report.Fields[domain.FieldRecord] = report.Accepted

	if !report.Accepted {
		report.Reason = fmt.Sprintf("%d of %d rows valid (%.0f%% < %.0f%%)", len(kept), total, ratio*100, v.minValidRatio*100)
		return report
	}

	report.Payload = &domain.Payload{Candidates: kept, Dropped: total - len(kept)}
	return report
}

func (v *Validator) validateSingle(payload *domain.Payload, ph *retailerPlaceholders) ValidationReport {
	d := payload.Detail
	if d == nil {
		return ValidationReport{Reason: "no detail record", Fields: FieldReport{domain.FieldRecord: false}}
	}

	images := v.validImages(d.ImageURLs, ph)
	fields := FieldReport{
		domain.FieldTitle:  v.validTitle(d.Title, ph),
		domain.FieldPrice:  d.Price > 0,
		domain.FieldImages: len(images) >= minDetailImages,
		domain.FieldStock:  d.StockStatus.Valid(),
	}

	var problems []string
	if !fields[domain.FieldTitle] {
		problems = append(problems, fmt.Sprintf("title %q invalid", d.Title))
	}
	if !fields[domain.FieldPrice] {
		problems = append(problems, "price missing")
	}
	if !fields[domain.FieldImages] {
		problems = append(problems, fmt.Sprintf("%d valid image(s), need %d", len(images), minDetailImages))
	}
	if !fields[domain.FieldStock] {
		problems = append(problems, fmt.Sprintf("stock status %q unknown", d.StockStatus))
	}

	fields[domain.FieldRecord] = len(problems) == 0
	if len(problems) > 0 {
		return ValidationReport{Reason: strings.Join(problems, "; "), Fields: fields}
	}

	detail := *d
	detail.ImageURLs = images
	return ValidationReport{
		Accepted: true,
		Fields:   fields,
		Payload:  &domain.Payload{Detail: &detail},
	}
}

func (v *Validator) validTitle(title string, ph *retailerPlaceholders) bool {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < minTitleLength || n > maxTitleLength {
		return false
	}
	if titlePlaceholderExact[v.normalizer.Normalize(title)] {
		return false
	}
	return !ph.titles.contains(title)
}

// validImages returns the absolute, non-placeholder image URLs in order
func (v *Validator) validImages(urls []string, ph *retailerPlaceholders) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if ph.images.contains(raw) || seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	return out
}

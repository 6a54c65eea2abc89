// Package retailer holds the per-retailer strategy table: matching thresholds,
// pagination, provider order and the parsing quirks of each catalog.
package retailer

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
)

// Pagination strategies
const (
	StrategyFixedPages     = "fixed_pages"
	StrategyInfiniteScroll = "infinite_scroll"
)

// Thresholds are the resolver knobs. They were tuned against one retailer
// and must be set explicitly for every retailer.
type Thresholds struct {
	AutoAccept     float64
	TitlePrice     float64
	TitleOnly      float64
	PriceTolerance float64
}

// DefaultThresholds returns the reference tuning: auto-accept 0.90,
// title+price 0.85 within 10%, title-only 0.90.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoAccept:     0.90,
		TitlePrice:     0.85,
		TitleOnly:      0.90,
		PriceTolerance: 0.10,
	}
}

// Pagination controls how a listing is walked. Page limits differ between
// baseline establishment and ongoing monitoring; for infinite scroll they
// are scroll step counts.
type Pagination struct {
	Strategy      string
	PageParam     string
	URLTemplate   string
	BaselinePages int
	MonitorPages  int
}

// Limit returns the page (or scroll step) limit for the pass
func (p Pagination) Limit(pass domain.Pass) int {
	if pass == domain.PassBaseline {
		return p.BaselinePages
	}
	return p.MonitorPages
}

// PageURL builds the URL for the given 1-based page of a listing.
func (p Pagination) PageURL(listingURL string, page int) string {
	n := strconv.Itoa(page)
	if p.URLTemplate != "" {
		out := strings.ReplaceAll(p.URLTemplate, "{listing}", listingURL)
		return strings.ReplaceAll(out, "{page}", n)
	}
	if p.PageParam == "" || page <= 1 {
		return listingURL
	}

	u, err := url.Parse(listingURL)
	if err != nil {
		return listingURL
	}
	q := u.Query()
	q.Set(p.PageParam, n)
	u.RawQuery = q.Encode()
	return u.String()
}

// Selectors are goquery selectors for HTML-based providers
type Selectors struct {
	Item          string
	Title         string
	Price         string
	OriginalPrice string
	Link          string
	Image         string
	Code          string
	Stock         string
}

// Profile is the validated configuration of one retailer
type Profile struct {
	Name              string
	Providers         []string
	AntiAutomation    bool
	CodePattern       *regexp.Regexp
	PriceFormat       PriceFormat
	PlaceholderTerms  []string
	Thresholds        Thresholds
	Pagination        Pagination
	Concurrency       int
	RequestsPerSecond float64
	MonitorInterval   time.Duration
	ListingSelectors  Selectors
	DetailSelectors   Selectors
}

var knownProviders = map[string]bool{
	domain.ProviderJSONAPI:    true,
	domain.ProviderStaticHTML: true,
	domain.ProviderBrowser:    true,
}

// Validate checks the profile is complete. Missing thresholds or pagination
// are fatal: wrong defaults once classified a whole inventory as new.
func (p *Profile) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(p.Providers) == 0 {
		errs = append(errs, errors.New("providers list is empty"))
	}
	for _, name := range p.Providers {
		if !knownProviders[name] {
			errs = append(errs, fmt.Errorf("unknown provider %q", name))
		}
	}
	if p.AntiAutomation && !p.hasProvider(domain.ProviderBrowser) {
		errs = append(errs, errors.New("anti_automation requires the browser provider"))
	}

	errs = append(errs, p.validateThresholds()...)
	errs = append(errs, p.validatePagination()...)

	if (p.hasProvider(domain.ProviderStaticHTML) || p.hasProvider(domain.ProviderBrowser)) &&
		(p.ListingSelectors.Item == "" || p.ListingSelectors.Title == "" ||
			p.ListingSelectors.Price == "" || p.ListingSelectors.Link == "") {
		errs = append(errs, errors.New("html providers need item, title, price and link selectors"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidRetailerConfig, p.Name, errors.Join(errs...))
	}
	return nil
}

func (p *Profile) validateThresholds() []error {
	var errs []error
	check := func(name string, v float64) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("matching.%s must be in (0, 1], got %v", name, v))
		}
	}
	check("auto_accept_threshold", p.Thresholds.AutoAccept)
	check("title_price_similarity", p.Thresholds.TitlePrice)
	check("title_only_similarity", p.Thresholds.TitleOnly)
	check("price_tolerance", p.Thresholds.PriceTolerance)
	return errs
}

func (p *Profile) validatePagination() []error {
	var errs []error
	pg := p.Pagination

	switch pg.Strategy {
	case StrategyFixedPages:
		if pg.PageParam == "" && !strings.Contains(pg.URLTemplate, "{page}") {
			errs = append(errs, errors.New("fixed_pages needs page_param or a url_template containing {page}"))
		}
	case StrategyInfiniteScroll:
	case "":
		errs = append(errs, errors.New("pagination strategy is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown pagination strategy %q", pg.Strategy))
	}
	if pg.BaselinePages <= 0 {
		errs = append(errs, errors.New("pagination.baseline_pages must be positive"))
	}
	if pg.MonitorPages <= 0 {
		errs = append(errs, errors.New("pagination.monitor_pages must be positive"))
	}
	return errs
}

func (p *Profile) hasProvider(name string) bool {
	for _, n := range p.Providers {
		if n == name {
			return true
		}
	}
	return false
}

// ExtractCode applies the retailer's product-code pattern to the URL path.
// The first capture group wins when the pattern has one.
func (p *Profile) ExtractCode(rawURL string) string {
	if p.CodePattern == nil || rawURL == "" {
		return ""
	}
	m := p.CodePattern.FindStringSubmatch(URLPath(rawURL))
	switch {
	case len(m) == 0:
		return ""
	case len(m) > 1 && m[1] != "":
		return strings.ToUpper(m[1])
	default:
		return strings.ToUpper(m[0])
	}
}

// ParsePrice parses a price string using the retailer's decimal format
func (p *Profile) ParsePrice(raw string) (float64, error) {
	return ParsePrice(raw, p.PriceFormat)
}

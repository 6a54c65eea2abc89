package provider

import (
	"encoding/json"
	"strings"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/retailer"
)

// apiPrice accepts either a JSON number or a formatted price string
type apiPrice struct {
	value float64
	raw   string
}

// UnmarshalJSON implements json.Unmarshaler
func (p *apiPrice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &p.value); err == nil {
		return nil
	}
	return json.Unmarshal(data, &p.raw)
}

func (p apiPrice) resolve(profile *retailer.Profile) float64 {
	if p.raw == "" {
		return p.value
	}
	v, err := profile.ParsePrice(p.raw)
	if err != nil {
		return 0
	}
	return v
}

type apiProduct struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Price         apiPrice `json:"price"`
	OriginalPrice apiPrice `json:"original_price"`
	ProductCode   string   `json:"product_code"`
	ImageURLs     []string `json:"image_urls"`
	StockStatus   string   `json:"stock_status"`
	Description   string   `json:"description"`
}

type apiCatalog struct {
	Items []apiProduct `json:"items"`
	Page  int          `json:"page"`
}

func (a apiProduct) toCandidate(profile *retailer.Profile) domain.Candidate {
	return domain.Candidate{
		URL:           a.URL,
		Title:         strings.TrimSpace(a.Title),
		Price:         a.Price.resolve(profile),
		OriginalPrice: a.OriginalPrice.resolve(profile),
		ProductCode:   a.ProductCode,
		ImageURLs:     a.ImageURLs,
		StockStatus:   mapStock(a.StockStatus),
	}
}

func (a apiProduct) toDetail(profile *retailer.Profile) *domain.ProductDetail {
	return &domain.ProductDetail{
		URL:           a.URL,
		Title:         strings.TrimSpace(a.Title),
		Price:         a.Price.resolve(profile),
		OriginalPrice: a.OriginalPrice.resolve(profile),
		ProductCode:   a.ProductCode,
		ImageURLs:     a.ImageURLs,
		StockStatus:   mapStock(a.StockStatus),
		Description:   a.Description,
	}
}

func (c apiCatalog) toCandidates(profile *retailer.Profile) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, item.toCandidate(profile))
	}
	return out
}

// mapStock accepts our own status names and falls back to free-text parsing
func mapStock(raw string) domain.StockStatus {
	if s := domain.StockStatus(raw); s.Valid() {
		return s
	}
	return parseStock(raw)
}

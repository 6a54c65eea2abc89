package retailer

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/backend/internal/domain"
)

func validProfile() *Profile {
	return &Profile{
		Name:        "selfridges",
		Providers:   []string{domain.ProviderJSONAPI, domain.ProviderBrowser},
		CodePattern: regexp.MustCompile(`/dp/([A-Z]+-[A-Z]+\d+)`),
		Thresholds:  DefaultThresholds(),
		Pagination: Pagination{
			Strategy:      StrategyFixedPages,
			PageParam:     "pn",
			BaselinePages: 10,
			MonitorPages:  2,
		},
		ListingSelectors: Selectors{Item: ".c-listing", Title: ".title", Price: ".price", Link: "a"},
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips trailing slash", "https://shop.example/dp/SELF-WD101/", "https://shop.example/dp/SELF-WD101"},
		{"strips query string", "https://shop.example/dp/SELF-WD101?colour=red&utm_source=x", "https://shop.example/dp/SELF-WD101"},
		{"strips fragment", "https://shop.example/dp/SELF-WD101#reviews", "https://shop.example/dp/SELF-WD101"},
		{"lowercases host", "https://SHOP.Example/dp/SELF-WD101", "https://shop.example/dp/SELF-WD101"},
		{"upgrades http", "http://shop.example/dp/SELF-WD101", "https://shop.example/dp/SELF-WD101"},
		{"drops default port", "https://shop.example:443/dp/SELF-WD101", "https://shop.example/dp/SELF-WD101"},
		{"keeps path case", "https://shop.example/DP/Self-Wd101", "https://shop.example/DP/Self-Wd101"},
		{"resolves dot segments", "https://shop.example/a/../dp/1/", "https://shop.example/dp/1"},
		{"root", "https://shop.example/", "https://shop.example"},
		{"relative fallback", "/dp/SELF-WD101/?x=1", "/dp/SELF-WD101"},
		{"empty", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestNormalizeURL_Symmetric(t *testing.T) {
	stored := "https://shop.example/dp/SELF-WD101/"
	incoming := "https://shop.example/dp/SELF-WD101?ref=listing"
	assert.Equal(t, NormalizeURL(stored), NormalizeURL(incoming))
}

func TestNormalizeImageURL(t *testing.T) {
	assert.Equal(t,
		"https://cdn.example/img/1.jpg",
		NormalizeImageURL("//cdn.example/img/1.jpg?w=400"),
	)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		format  PriceFormat
		want    float64
		wantErr bool
	}{
		{"pounds with grouping", "£1,234.50", PriceDot, 1234.50, false},
		{"plain", "895.00", PriceDot, 895, false},
		{"euro comma", "1.234,56 €", PriceComma, 1234.56, false},
		{"comma no grouping", "19,99", PriceComma, 19.99, false},
		{"rounds to cents", "$10.006", PriceDot, 10.01, false},
		{"no digits", "Sold out", PriceDot, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.raw, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestProfile_ExtractCode(t *testing.T) {
	p := validProfile()

	assert.Equal(t, "SELF-WD101", p.ExtractCode("https://shop.example/dp/SELF-WD101/?x=1"))
	assert.Equal(t, "", p.ExtractCode("https://shop.example/category/dresses"))

	p.CodePattern = regexp.MustCompile(`\d{6,}`)
	assert.Equal(t, "1234567", p.ExtractCode("https://shop.example/item-1234567.html"))

	p.CodePattern = nil
	assert.Equal(t, "", p.ExtractCode("https://shop.example/dp/SELF-WD101"))
}

func TestProfile_Validate(t *testing.T) {
	t.Run("valid profile", func(t *testing.T) {
		require.NoError(t, validProfile().Validate())
	})

	tests := []struct {
		name   string
		mutate func(p *Profile)
	}{
		{"no pagination strategy", func(p *Profile) { p.Pagination.Strategy = "" }},
		{"unknown strategy", func(p *Profile) { p.Pagination.Strategy = "cursor" }},
		{"fixed pages without template", func(p *Profile) { p.Pagination.PageParam = "" }},
		{"no baseline pages", func(p *Profile) { p.Pagination.BaselinePages = 0 }},
		{"no monitor pages", func(p *Profile) { p.Pagination.MonitorPages = 0 }},
		{"missing thresholds", func(p *Profile) { p.Thresholds = Thresholds{} }},
		{"threshold above one", func(p *Profile) { p.Thresholds.AutoAccept = 1.5 }},
		{"no providers", func(p *Profile) { p.Providers = nil }},
		{"unknown provider", func(p *Profile) { p.Providers = []string{"carrier_pigeon"} }},
		{"anti automation without browser", func(p *Profile) {
			p.AntiAutomation = true
			p.Providers = []string{domain.ProviderJSONAPI}
		}},
		{"html without selectors", func(p *Profile) {
			p.ListingSelectors = Selectors{}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(p)
			err := p.Validate()
			assert.True(t, errors.Is(err, domain.ErrInvalidRetailerConfig), "got %v", err)
		})
	}
}

func TestPagination_PageURL(t *testing.T) {
	t.Run("page param", func(t *testing.T) {
		p := Pagination{PageParam: "pn"}
		assert.Equal(t, "https://shop.example/dresses", p.PageURL("https://shop.example/dresses", 1))
		assert.Equal(t, "https://shop.example/dresses?pn=3", p.PageURL("https://shop.example/dresses", 3))
	})

	t.Run("template", func(t *testing.T) {
		p := Pagination{URLTemplate: "{listing}/page/{page}"}
		assert.Equal(t, "https://shop.example/dresses/page/2", p.PageURL("https://shop.example/dresses", 2))
	})

	t.Run("limits per pass", func(t *testing.T) {
		p := Pagination{BaselinePages: 20, MonitorPages: 3}
		assert.Equal(t, 20, p.Limit(domain.PassBaseline))
		assert.Equal(t, 3, p.Limit(domain.PassMonitor))
	})
}

func TestRegistry(t *testing.T) {
	good := validProfile()
	bad := validProfile()
	bad.Name = "broken"
	bad.Pagination = Pagination{}

	r := NewRegistry(good, bad)

	p, err := r.Get("selfridges")
	require.NoError(t, err)
	assert.Equal(t, PriceDot, p.PriceFormat)
	assert.Equal(t, 1, p.Concurrency)

	_, err = r.Get("broken")
	assert.ErrorIs(t, err, domain.ErrInvalidRetailerConfig)

	_, err = r.Get("nowhere")
	assert.ErrorIs(t, err, domain.ErrUnknownRetailer)

	assert.Equal(t, []string{"selfridges"}, r.Names())
	assert.Contains(t, r.Invalid(), "broken")
}

// Package provider implements the extraction cascade tiers: a structured
// JSON API, static HTML fetched with colly and pages rendered by a headless
// browser service. HTML tiers share the goquery parsers in this file.
package provider

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/retailer"
)

// parseListing reads catalog rows from a listing page. Rows whose price
// cannot be parsed are kept with a zero price so validation counts them.
func parseListing(root *goquery.Selection, p *retailer.Profile) []domain.Candidate {
	sel := p.ListingSelectors
	var out []domain.Candidate

	if sel.Item != "" {
		root.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
			c := domain.Candidate{
				Title:       textOf(item, sel.Title),
				URL:         linkOf(item, sel.Link),
				ProductCode: textOrAttr(item, sel.Code, "data-product-code"),
				StockStatus: parseStock(textOf(item, sel.Stock)),
			}
			c.Price, _ = p.ParsePrice(textOf(item, sel.Price))
			if raw := textOf(item, sel.OriginalPrice); raw != "" {
				c.OriginalPrice, _ = p.ParsePrice(raw)
			}
			if sel.Image != "" {
				if img := imageOf(item.Find(sel.Image).First()); img != "" {
					c.ImageURLs = []string{img}
				}
			}
			out = append(out, c)
		})
	}

	if len(out) == 0 {
		out = listingFromJSONLD(root, p)
	}
	return out
}

// parseDetail reads a product detail page. Selector results take priority;
// JSON-LD Product data fills whatever the selectors missed.
func parseDetail(root *goquery.Selection, pageURL string, p *retailer.Profile) *domain.ProductDetail {
	sel := p.DetailSelectors
	d := &domain.ProductDetail{URL: pageURL}

	d.Title = textOf(root, sel.Title)
	if d.Title == "" {
		d.Title = strings.TrimSpace(root.Find("h1").First().Text())
	}
	if raw := textOf(root, sel.Price); raw != "" {
		d.Price, _ = p.ParsePrice(raw)
	}
	if raw := textOf(root, sel.OriginalPrice); raw != "" {
		d.OriginalPrice, _ = p.ParsePrice(raw)
	}
	d.ProductCode = textOrAttr(root, sel.Code, "data-product-code")
	d.StockStatus = parseStock(textOf(root, sel.Stock))

	if sel.Image != "" {
		root.Find(sel.Image).Each(func(_ int, s *goquery.Selection) {
			if img := imageOf(s); img != "" {
				d.ImageURLs = append(d.ImageURLs, img)
			}
		})
	}

	if ld := productFromJSONLD(root); ld != nil {
		fillDetail(d, ld, p)
	}
	if d.Title == "" {
		if og, ok := root.Find(`meta[property="og:title"]`).Attr("content"); ok {
			d.Title = strings.TrimSpace(og)
		}
	}
	if len(d.ImageURLs) == 0 {
		if og, ok := root.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
			d.ImageURLs = []string{og}
		}
	}
	return d
}

func textOf(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func textOrAttr(s *goquery.Selection, selector, attr string) string {
	if selector == "" {
		return ""
	}
	found := s.Find(selector).First()
	if v, ok := found.Attr(attr); ok && v != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(found.Text())
}

func linkOf(item *goquery.Selection, selector string) string {
	if href, ok := item.Find(selector).First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	// the item itself may be the anchor
	href, _ := item.Attr("href")
	return strings.TrimSpace(href)
}

// imageOf prefers lazy-load attributes over src, which often holds a spinner
func imageOf(s *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-original", "src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if srcset, ok := s.Attr("srcset"); ok {
		if fields := strings.Fields(strings.Split(srcset, ",")[0]); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// parseStock maps free availability text and schema.org values to a status
func parseStock(raw string) domain.StockStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://schema.org/")
	s = strings.TrimPrefix(s, "http://schema.org/")
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "out of stock"), strings.Contains(s, "outofstock"),
		strings.Contains(s, "sold out"), strings.Contains(s, "soldout"):
		return domain.StockOutOfStock
	case strings.Contains(s, "discontinued"):
		return domain.StockDiscontinued
	case strings.Contains(s, "pre-order"), strings.Contains(s, "preorder"):
		return domain.StockPreorder
	case strings.Contains(s, "limited"), strings.Contains(s, "low stock"),
		strings.Contains(s, "few left"), strings.HasPrefix(s, "only "):
		return domain.StockLowStock
	case strings.Contains(s, "in stock"), strings.Contains(s, "instock"),
		strings.Contains(s, "add to bag"), strings.Contains(s, "add to cart"), s == "available":
		return domain.StockInStock
	}
	return ""
}

// ldProduct is the subset of a schema.org Product we read
type ldProduct struct {
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	ProductID string `json:"productID"`
	URL       string `json:"url"`
	Image     any    `json:"image"`
	Offers    any    `json:"offers"`
}

func jsonLDObjects(root *goquery.Selection) []map[string]any {
	var objs []map[string]any
	root.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			return
		}
		switch v := data.(type) {
		case []any:
			for _, o := range v {
				if m, ok := o.(map[string]any); ok {
					objs = append(objs, m)
				}
			}
		case map[string]any:
			if graph, ok := v["@graph"].([]any); ok {
				for _, o := range graph {
					if m, ok := o.(map[string]any); ok {
						objs = append(objs, m)
					}
				}
				return
			}
			objs = append(objs, v)
		}
	})
	return objs
}

func decodeLD(obj any) *ldProduct {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var p ldProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return &p
}

func productFromJSONLD(root *goquery.Selection) *ldProduct {
	for _, obj := range jsonLDObjects(root) {
		if obj["@type"] == "Product" {
			return decodeLD(obj)
		}
	}
	return nil
}

func listingFromJSONLD(root *goquery.Selection, p *retailer.Profile) []domain.Candidate {
	var out []domain.Candidate
	for _, obj := range jsonLDObjects(root) {
		if obj["@type"] != "ItemList" {
			continue
		}
		elements, _ := obj["itemListElement"].([]any)
		for _, el := range elements {
			m, ok := el.(map[string]any)
			if !ok {
				continue
			}
			if inner, ok := m["item"].(map[string]any); ok {
				m = inner
			}
			ld := decodeLD(m)
			if ld == nil {
				continue
			}
			price, rawPrice, stock := ld.offer()
			if price == 0 && rawPrice != "" {
				price, _ = p.ParsePrice(rawPrice)
			}
			out = append(out, domain.Candidate{
				URL:         ld.URL,
				Title:       strings.TrimSpace(ld.Name),
				Price:       price,
				ProductCode: ld.code(),
				ImageURLs:   ld.images(),
				StockStatus: stock,
			})
		}
	}
	return out
}

func fillDetail(d *domain.ProductDetail, ld *ldProduct, p *retailer.Profile) {
	if d.Title == "" {
		d.Title = strings.TrimSpace(ld.Name)
	}
	if d.ProductCode == "" {
		d.ProductCode = ld.code()
	}
	if len(d.ImageURLs) == 0 {
		d.ImageURLs = ld.images()
	}
	price, rawPrice, stock := ld.offer()
	if d.Price == 0 {
		d.Price = price
		if d.Price == 0 && rawPrice != "" {
			d.Price, _ = p.ParsePrice(rawPrice)
		}
	}
	if d.StockStatus == "" {
		d.StockStatus = stock
	}
}

func (l *ldProduct) code() string {
	if l.SKU != "" {
		return l.SKU
	}
	return l.ProductID
}

func (l *ldProduct) images() []string {
	switch v := l.Image.(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		var out []string
		for _, img := range v {
			switch iv := img.(type) {
			case string:
				out = append(out, iv)
			case map[string]any:
				if u, ok := iv["url"].(string); ok {
					out = append(out, u)
				}
			}
		}
		return out
	case map[string]any:
		if u, ok := v["url"].(string); ok {
			return []string{u}
		}
	}
	return nil
}

// offer returns the numeric price, the raw price string when it was not a
// number, and the availability of the first offer
func (l *ldProduct) offer() (float64, string, domain.StockStatus) {
	var o map[string]any
	switch v := l.Offers.(type) {
	case map[string]any:
		o = v
	case []any:
		if len(v) > 0 {
			o, _ = v[0].(map[string]any)
		}
	}
	if o == nil {
		return 0, "", ""
	}

	avail, _ := o["availability"].(string)
	stock := parseStock(avail)
	switch price := o["price"].(type) {
	case float64:
		return price, "", stock
	case string:
		return 0, price, stock
	}
	if low, ok := o["lowPrice"].(float64); ok {
		return low, "", stock
	}
	return 0, "", stock
}

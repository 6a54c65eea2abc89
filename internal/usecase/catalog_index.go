package usecase

import (
	"strings"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/retailer"
)

// fuzzyPrefixLen is the token prefix used to find typo'd titles
const fuzzyPrefixLen = 4

// IndexEntry is a stored record the resolver can match against: either a
// canonical product or an item of the active baseline.
type IndexEntry struct {
	Canonical *domain.CanonicalProduct
	Baseline  *domain.Candidate
	URL       string
	Title     string
	Price     float64
	tokens    []string
}

// Lookup is the read view the resolver needs over one source
type Lookup interface {
	ByURL(url string) (*IndexEntry, bool)
	ByNormalizedURL(normalizedURL string) (*IndexEntry, bool)
	ByProductCode(code string) (*IndexEntry, bool)
	ByImageURL(imageURL string) (*IndexEntry, bool)
	// FuzzyPool returns entries sharing at least one token or token prefix.
	FuzzyPool(tokens []string) []*IndexEntry
}

// CatalogIndex is an immutable in-memory view built once per run. It is safe
// for concurrent reads. All keys are derived from the stored URL with the same
// normalization applied to incoming candidates.
type CatalogIndex struct {
	entries      []IndexEntry
	byURL        map[string]int
	byNormalized map[string]int
	byCode       map[string]int
	byImage      map[string]int
	byToken      map[string][]int
	byPrefix     map[string][]int
}

func newCatalogIndex(size int) *CatalogIndex {
	return &CatalogIndex{
		entries:      make([]IndexEntry, 0, size),
		byURL:        make(map[string]int, size),
		byNormalized: make(map[string]int, size),
		byCode:       make(map[string]int, size),
		byImage:      make(map[string]int, size),
		byToken:      make(map[string][]int),
		byPrefix:     make(map[string][]int),
	}
}

// NewCanonicalIndex indexes canonical products. Earlier products win key collisions.
func NewCanonicalIndex(profile *retailer.Profile, normalizer *TitleNormalizer, products []domain.CanonicalProduct) *CatalogIndex {
	idx := newCatalogIndex(len(products))
	for i := range products {
		p := &products[i]
		idx.add(profile, normalizer, IndexEntry{
			Canonical: p,
			URL:       p.URL,
			Title:     p.Title,
			Price:     p.Price,
		}, p.ProductCode, p.PrimaryImage())
	}
	return idx
}

// NewBaselineIndex indexes the items of a baseline snapshot. A nil snapshot yields an empty index.
func NewBaselineIndex(profile *retailer.Profile, normalizer *TitleNormalizer, snapshot *domain.BaselineSnapshot) *CatalogIndex {
	if snapshot == nil {
		return newCatalogIndex(0)
	}
	idx := newCatalogIndex(len(snapshot.Items))
	for i := range snapshot.Items {
		c := &snapshot.Items[i]
		idx.add(profile, normalizer, IndexEntry{
			Baseline: c,
			URL:      c.URL,
			Title:    c.Title,
			Price:    c.Price,
		}, c.ProductCode, c.PrimaryImage())
	}
	return idx
}

func (idx *CatalogIndex) add(profile *retailer.Profile, normalizer *TitleNormalizer, e IndexEntry, storedCode, primaryImage string) {
	e.tokens = normalizer.Tokens(e.Title)
	pos := len(idx.entries)
	idx.entries = append(idx.entries, e)

	putFirst(idx.byURL, strings.TrimSpace(e.URL), pos)
	putFirst(idx.byNormalized, retailer.NormalizeURL(e.URL), pos)
	putFirst(idx.byCode, strings.ToUpper(strings.TrimSpace(storedCode)), pos)
	if profile != nil {
		putFirst(idx.byCode, profile.ExtractCode(e.URL), pos)
	}
	putFirst(idx.byImage, retailer.NormalizeImageURL(primaryImage), pos)

	for _, token := range uniqueTokens(e.tokens) {
		idx.byToken[token] = append(idx.byToken[token], pos)
		if p := tokenPrefix(token); p != "" {
			idx.byPrefix[p] = append(idx.byPrefix[p], pos)
		}
	}
}

func putFirst(m map[string]int, key string, pos int) {
	if key == "" {
		return
	}
	if _, exists := m[key]; !exists {
		m[key] = pos
	}
}

func tokenPrefix(token string) string {
	r := []rune(token)
	if len(r) < defaultFuzzyMinTokenLength {
		return ""
	}
	return string(r[:fuzzyPrefixLen])
}

// Len returns the number of indexed entries
func (idx *CatalogIndex) Len() int {
	return len(idx.entries)
}

func (idx *CatalogIndex) lookup(m map[string]int, key string) (*IndexEntry, bool) {
	if key == "" {
		return nil, false
	}
	pos, ok := m[key]
	if !ok {
		return nil, false
	}
	return &idx.entries[pos], true
}

// ByURL looks up an exact stored URL
func (idx *CatalogIndex) ByURL(url string) (*IndexEntry, bool) {
	return idx.lookup(idx.byURL, strings.TrimSpace(url))
}

// ByNormalizedURL looks up a normalized URL
func (idx *CatalogIndex) ByNormalizedURL(normalizedURL string) (*IndexEntry, bool) {
	return idx.lookup(idx.byNormalized, normalizedURL)
}

// ByProductCode looks up a product code, case-insensitively
func (idx *CatalogIndex) ByProductCode(code string) (*IndexEntry, bool) {
	return idx.lookup(idx.byCode, strings.ToUpper(strings.TrimSpace(code)))
}

// ByImageURL looks up a normalized primary image URL
func (idx *CatalogIndex) ByImageURL(imageURL string) (*IndexEntry, bool) {
	return idx.lookup(idx.byImage, imageURL)
}

// FuzzyPool returns entries sharing a token or a token prefix with the query, in index order
func (idx *CatalogIndex) FuzzyPool(tokens []string) []*IndexEntry {
	seen := make(map[int]bool)
	for _, token := range tokens {
		for _, pos := range idx.byToken[token] {
			seen[pos] = true
		}
		if p := tokenPrefix(token); p != "" {
			for _, pos := range idx.byPrefix[p] {
				seen[pos] = true
			}
		}
	}

	pool := make([]*IndexEntry, 0, len(seen))
	for pos := range idx.entries {
		if seen[pos] {
			pool = append(pool, &idx.entries[pos])
		}
	}
	return pool
}

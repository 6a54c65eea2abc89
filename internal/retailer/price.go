package retailer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// PriceFormat is the decimal convention used in a retailer's price strings
type PriceFormat string

const (
	// PriceDot is "1,234.56"
	PriceDot PriceFormat = "dot"
	// PriceComma is "1.234,56"
	PriceComma PriceFormat = "comma"
)

// ParsePrice strips currency symbols and grouping separators and returns the
// amount rounded to cents.
func ParsePrice(raw string, format PriceFormat) (float64, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, fmt.Errorf("parse price %q: no digits", raw)
	}

	if format == PriceComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(strings.Trim(s, "."), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return math.Round(v*100) / 100, nil
}

package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compiled patterns for title preprocessing
var (
	// Anything that is not a letter, digit or whitespace becomes a separator
	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// titleStopWords are dropped before comparing titles
var titleStopWords = map[string]bool{
	// Basic English stop words
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "by": true, "from": true, "&": true,

	// Merchandising noise that retailers add and remove between listings
	"new": true, "sale": true, "exclusive": true, "online": true,
	"only": true, "now": true, "season": true,
}

// TitleNormalizer folds product titles into comparable token lists
type TitleNormalizer struct{}

// NewTitleNormalizer creates a new title normalizer
func NewTitleNormalizer() *TitleNormalizer {
	return &TitleNormalizer{}
}

// Normalize lowercases, strips accents and punctuation and collapses whitespace.
// "Robe Brodée – Édition" becomes "robe brodee edition".
func (n *TitleNormalizer) Normalize(title string) string {
	if title == "" {
		return ""
	}

	folded := foldAccents(strings.ToLower(title))
	cleaned := punctuationPattern.ReplaceAllString(folded, " ")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")

	return strings.TrimSpace(cleaned)
}

// Tokens returns the normalized title split into words with stop words and
// single characters removed. Order is preserved.
func (n *TitleNormalizer) Tokens(title string) []string {
	words := strings.Fields(n.Normalize(title))

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len([]rune(word)) <= 1 && !isNumeric(word) {
			continue
		}
		if titleStopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// Key returns the tokens joined by single spaces, used for edit distance
func (n *TitleNormalizer) Key(title string) string {
	return strings.Join(n.Tokens(title), " ")
}

// foldAccents removes combining marks after canonical decomposition
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

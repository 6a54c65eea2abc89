package usecase

import (
	"math"
	"testing"
)

func TestNewMatchingService(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		svc := NewMatchingService(MatchConfig{})
		if svc.fuzzyEditDistance != defaultFuzzyEditDistance {
			t.Errorf("fuzzyEditDistance = %d, want %d", svc.fuzzyEditDistance, defaultFuzzyEditDistance)
		}
		if svc.fuzzyMinTokenLength != defaultFuzzyMinTokenLength {
			t.Errorf("fuzzyMinTokenLength = %d, want %d", svc.fuzzyMinTokenLength, defaultFuzzyMinTokenLength)
		}
		if svc.minContainmentTokens != defaultMinContainmentTokens {
			t.Errorf("minContainmentTokens = %d, want %d", svc.minContainmentTokens, defaultMinContainmentTokens)
		}
		if svc.Normalizer() == nil {
			t.Error("expected a normalizer")
		}
	})

	t.Run("keeps explicit config", func(t *testing.T) {
		svc := NewMatchingService(MatchConfig{FuzzyEditDistance: 2, FuzzyMinTokenLength: 6, MinContainmentTokens: 4})
		if svc.fuzzyEditDistance != 2 || svc.fuzzyMinTokenLength != 6 || svc.minContainmentTokens != 4 {
			t.Errorf("config not applied: %+v", svc)
		}
	})
}

func TestSimilarity(t *testing.T) {
	svc := NewMatchingService(MatchConfig{})

	testCases := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{
			name: "identical titles",
			a:    "Burgundy Midi Dress",
			b:    "Burgundy Midi Dress",
			want: 1,
		},
		{
			name: "case and accents ignored",
			a:    "Robe Brodée",
			b:    "ROBE BRODEE",
			want: 1,
		},
		{
			name: "merchandising noise ignored",
			a:    "NEW Burgundy Midi Dress - Online Exclusive",
			b:    "Burgundy Midi Dress",
			want: 1,
		},
		{
			name: "shorter title contained in longer one",
			a:    "Burgundy Midi Dress",
			b:    "Burgundy Midi Dress Silk Satin",
			// full coverage damped by 3 of 5 tokens
			want: 0.94,
		},
		{
			name: "empty title",
			a:    "",
			b:    "Burgundy Midi Dress",
			want: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := svc.Similarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if back := svc.Similarity(tc.b, tc.a); math.Abs(back-got) > 1e-9 {
				t.Errorf("Similarity is not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestSimilarity_ShortTitlesDoNotUseContainment(t *testing.T) {
	svc := NewMatchingService(MatchConfig{})

	got := svc.Similarity("Midi Dress", "Midi Dress Floral Print Cotton")
	if got >= 0.5 {
		t.Errorf("Similarity() = %v, want below 0.5 for a two-token title", got)
	}
}

func TestSimilarity_TypoTolerance(t *testing.T) {
	svc := NewMatchingService(MatchConfig{})

	got := svc.Similarity("Burgandy Pleated Midi Dress", "Burgundy Pleated Midi Dress Silk")
	if got < 0.9 {
		t.Errorf("Similarity() = %v, want at least 0.9 with one misspelt token", got)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	testCases := []struct {
		s1   string
		s2   string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"brodée", "brodee", 1},
		{"midi", "mini", 1},
	}

	for _, tc := range testCases {
		if got := levenshteinDistance(tc.s1, tc.s2); got != tc.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tc.s1, tc.s2, got, tc.want)
		}
	}
}

func TestLevenshteinRatio(t *testing.T) {
	if got := levenshteinRatio("", ""); got != 1 {
		t.Errorf("levenshteinRatio of empty strings = %v, want 1", got)
	}
	if got := levenshteinRatio("abcd", "abcf"); got != 0.75 {
		t.Errorf("levenshteinRatio(abcd, abcf) = %v, want 0.75", got)
	}
}

func TestFuzzyTokenMatch(t *testing.T) {
	svc := NewMatchingService(MatchConfig{})

	testCases := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"one edit on long tokens", "burgundy", "burgandy", true},
		{"short tokens must match exactly", "midi", "mini", false},
		{"length difference too large", "pleated", "pleat", false},
		{"two edits", "crimson", "crimsun2", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.fuzzyTokenMatch(tc.a, tc.b); got != tc.want {
				t.Errorf("fuzzyTokenMatch(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestTokensAgree(t *testing.T) {
	svc := NewMatchingService(MatchConfig{})

	testCases := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"identical", "Burgundy Pleated Midi Dress", "Burgundy Pleated Midi Dress", true},
		{"reordered", "Pleated Burgundy Midi Dress", "Burgundy Pleated Midi Dress", true},
		{"typo on a long token", "Burgandy Pleated Midi Dress", "Burgundy Pleated Midi Dress", true},
		{"extra token", "Black Midi Dress", "Black Satin Midi Dress", false},
		{"short token swapped", "Floral Wrap Mini Dress", "Floral Wrap Midi Dress", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n := svc.Normalizer()
			if got := svc.tokensAgree(n.Tokens(tc.a), n.Tokens(tc.b)); got != tc.want {
				t.Errorf("tokensAgree(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

package usecase

import "strings"

// Defaults for title similarity
const (
	defaultFuzzyEditDistance    = 1
	defaultFuzzyMinTokenLength  = 5
	defaultMinContainmentTokens = 3

	// containment is damped by how much of the longer title the shorter covers
	containmentBase  = 0.85
	containmentRange = 0.15
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	FuzzyEditDistance    int
	FuzzyMinTokenLength  int
	MinContainmentTokens int
}

// MatchingService scores how alike two product titles are
type MatchingService struct {
	normalizer           *TitleNormalizer
	fuzzyEditDistance    int
	fuzzyMinTokenLength  int
	minContainmentTokens int
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig) *MatchingService {
	fuzzyDist := config.FuzzyEditDistance
	if fuzzyDist <= 0 {
		fuzzyDist = defaultFuzzyEditDistance
	}

	minLen := config.FuzzyMinTokenLength
	if minLen <= 0 {
		minLen = defaultFuzzyMinTokenLength
	}

	minTokens := config.MinContainmentTokens
	if minTokens <= 0 {
		minTokens = defaultMinContainmentTokens
	}

	return &MatchingService{
		normalizer:           NewTitleNormalizer(),
		fuzzyEditDistance:    fuzzyDist,
		fuzzyMinTokenLength:  minLen,
		minContainmentTokens: minTokens,
	}
}

// Normalizer returns the title normalizer used for scoring
func (s *MatchingService) Normalizer() *TitleNormalizer {
	return s.normalizer
}

// Similarity returns a score in [0, 1]: the larger of the normalized
// Levenshtein ratio and the token containment score. Comparison is case
// and accent insensitive.
func (s *MatchingService) Similarity(a, b string) float64 {
	tokensA := s.normalizer.Tokens(a)
	tokensB := s.normalizer.Tokens(b)
	return s.similarityTokens(tokensA, tokensB)
}

func (s *MatchingService) similarityTokens(tokensA, tokensB []string) float64 {
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	ratio := levenshteinRatio(strings.Join(tokensA, " "), strings.Join(tokensB, " "))
	contained := s.containment(tokensA, tokensB)

	if contained > ratio {
		return contained
	}
	return ratio
}

// containment measures how many tokens of the shorter title appear in the
// longer one. It only counts when the shorter title has enough tokens to be
// distinctive; "Midi Dress" alone says little.
func (s *MatchingService) containment(tokensA, tokensB []string) float64 {
	shorter, longer := uniqueTokens(tokensA), uniqueTokens(tokensB)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	if len(shorter) < s.minContainmentTokens {
		return 0
	}

	matched := 0
	for _, token := range shorter {
		for _, candidate := range longer {
			if token == candidate || s.fuzzyTokenMatch(token, candidate) {
				matched++
				break
			}
		}
	}

	coverage := float64(matched) / float64(len(shorter))
	damping := containmentBase + containmentRange*float64(len(shorter))/float64(len(longer))

	return coverage * damping
}

// tokensAgree reports whether every token of each title has an equal or
// fuzzy counterpart in the other. High scores can still hide a whole-token
// difference: "mini" against "midi", or an extra "satin".
func (s *MatchingService) tokensAgree(tokensA, tokensB []string) bool {
	return s.covers(tokensA, tokensB) && s.covers(tokensB, tokensA)
}

func (s *MatchingService) covers(tokens, in []string) bool {
	for _, token := range tokens {
		found := false
		for _, other := range in {
			if token == other || s.fuzzyTokenMatch(token, other) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// fuzzyTokenMatch checks if two tokens are within the edit distance threshold.
// Short tokens must match exactly to avoid "mini" == "midi".
func (s *MatchingService) fuzzyTokenMatch(token1, token2 string) bool {
	r1, r2 := []rune(token1), []rune(token2)
	if len(r1) < s.fuzzyMinTokenLength || len(r2) < s.fuzzyMinTokenLength {
		return false
	}

	lenDiff := len(r1) - len(r2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > s.fuzzyEditDistance {
		return false
	}

	return levenshteinDistance(token1, token2) <= s.fuzzyEditDistance
}

// levenshteinRatio returns 1 - distance/maxLen over runes
func levenshteinRatio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(a, b))/float64(maxLen)
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Two rows instead of the full matrix
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

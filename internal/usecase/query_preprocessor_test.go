package usecase

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	n := NewTitleNormalizer()

	testCases := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "folds accents and dashes",
			title: "Robe Brodée – Édition",
			want:  "robe brodee edition",
		},
		{
			name:  "strips punctuation",
			title: "Burgundy Midi-Dress (Silk)",
			want:  "burgundy midi dress silk",
		},
		{
			name:  "collapses whitespace",
			title: "  Pleated   \t Maxi Skirt ",
			want:  "pleated maxi skirt",
		},
		{
			name:  "keeps digits",
			title: "2-Piece Co-Ord Set",
			want:  "2 piece co ord set",
		},
		{
			name:  "empty title",
			title: "",
			want:  "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := n.Normalize(tc.title); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	n := NewTitleNormalizer()

	testCases := []struct {
		name  string
		title string
		want  []string
	}{
		{
			name:  "drops stop words and merchandising noise",
			title: "The New Burgundy Midi Dress in Silk",
			want:  []string{"burgundy", "midi", "dress", "silk"},
		},
		{
			name:  "drops single letters but keeps single digits",
			title: "A-Line 2 Piece Set",
			want:  []string{"line", "2", "piece", "set"},
		},
		{
			name:  "exclusive online only is noise",
			title: "Online Exclusive Wrap Dress",
			want:  []string{"wrap", "dress"},
		},
		{
			name:  "empty title",
			title: "",
			want:  []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Tokens(tc.title)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Tokens(%q) = %v, want %v", tc.title, got, tc.want)
			}
		})
	}
}

func TestKey(t *testing.T) {
	n := NewTitleNormalizer()

	a := n.Key("Burgundy Midi Dress - SALE")
	b := n.Key("burgundy midi dress")
	if a != b {
		t.Errorf("Key() = %q and %q, want equal", a, b)
	}
}

func TestIsNumeric(t *testing.T) {
	testCases := []struct {
		input string
		want  bool
	}{
		{"123", true},
		{"0", true},
		{"", false},
		{"12a", false},
		{"1.5", false},
	}

	for _, tc := range testCases {
		if got := isNumeric(tc.input); got != tc.want {
			t.Errorf("isNumeric(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

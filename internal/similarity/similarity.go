// Package similarity provides the string similarity primitives used for
// fuzzy keyword matching and redundancy detection. All functions operate on
// runes so that CJK text is measured per character.
package similarity

import (
	"strings"
	"unicode"
)

// Default composite weighting and n-gram size.
const (
	DefaultEditWeight = 0.6
	DefaultNGram      = 2
)

// Levenshtein returns the edit distance between a and b.
func Levenshtein(a, b string) int {
	return levenshteinRunes([]rune(a), []rune(b))
}

func levenshteinRunes(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two rows of the DP table are enough.
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}
	return prevRow[len(b)]
}

// EditSimilarity returns 1 - levenshtein(a,b)/max(len(a),len(b)).
// Two empty strings are identical.
func EditSimilarity(a, b string) float64 {
	return editSimilarityRunes([]rune(a), []rune(b))
}

func editSimilarityRunes(a, b []rune) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinRunes(a, b))/float64(maxLen)
}

// NGrams returns the set of rune n-grams of s. A non-empty string shorter
// than n is its own single gram.
func NGrams(s string, n int) map[string]struct{} {
	if n <= 0 {
		n = DefaultNGram
	}
	runes := []rune(s)
	grams := make(map[string]struct{})
	if len(runes) == 0 {
		return grams
	}
	if len(runes) < n {
		grams[s] = struct{}{}
		return grams
	}
	for i := 0; i+n <= len(runes); i++ {
		grams[string(runes[i:i+n])] = struct{}{}
	}
	return grams
}

// JaccardNGram returns |A∩B| / |A∪B| over the n-gram sets of a and b.
func JaccardNGram(a, b string, n int) float64 {
	ga, gb := NGrams(a, n), NGrams(b, n)
	if len(ga) == 0 && len(gb) == 0 {
		return 1.0
	}
	inter := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	return float64(inter) / float64(union)
}

// Metric is a weighted blend of edit similarity and n-gram Jaccard.
type Metric struct {
	EditWeight float64
	NGram      int
}

// DefaultMetric returns the 0.6 edit / 0.4 bigram blend.
func DefaultMetric() Metric {
	return Metric{EditWeight: DefaultEditWeight, NGram: DefaultNGram}
}

// Similarity returns the composite score in [0,1]. It is symmetric and
// Similarity(a, a) == 1.
func (m Metric) Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	w := m.EditWeight
	if w < 0 || w > 1 {
		w = DefaultEditWeight
	}
	sim := w*EditSimilarity(a, b) + (1-w)*JaccardNGram(a, b, m.NGram)
	return clamp01(sim)
}

// Similarity is the default composite metric.
func Similarity(a, b string) float64 {
	return DefaultMetric().Similarity(a, b)
}

// FuzzyContains returns the best edit similarity between pattern and any
// word of text. Words longer than the pattern are scanned with a window of
// the pattern's length so unsegmented text (Chinese) still matches.
// Multi-word patterns are compared against runs of the same number of words.
// Case is folded before comparison.
func FuzzyContains(text, pattern string) float64 {
	patternWords := Words(strings.ToLower(pattern))
	if len(patternWords) == 0 {
		return 0
	}
	words := Words(strings.ToLower(text))

	if len(patternWords) > 1 {
		p := []rune(strings.Join(patternWords, " "))
		best := 0.0
		for i := 0; i+len(patternWords) <= len(words); i++ {
			candidate := []rune(strings.Join(words[i:i+len(patternWords)], " "))
			best = max(best, editSimilarityRunes(candidate, p))
		}
		return best
	}

	p := []rune(patternWords[0])
	best := 0.0
	for _, word := range words {
		w := []rune(word)
		if len(w) <= len(p)+1 {
			best = max(best, editSimilarityRunes(w, p))
			continue
		}
		for i := 0; i+len(p) <= len(w); i++ {
			best = max(best, editSimilarityRunes(w[i:i+len(p)], p))
			if best == 1.0 {
				return best
			}
		}
	}
	return best
}

// Words splits text on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

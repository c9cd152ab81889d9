package matcher

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// normalizeText trims, NFC-composes and lower-cases s.
// A Caser keeps state, so a fresh one is created per call to stay safe across goroutines.
func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

// EditSimilarity returns (maxLen - distance) / maxLen * 100 over the runes of a and b,
// using unit costs for insertion, deletion and substitution.
func EditSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 100
	}

	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	return float64(maxLen-distance) / float64(maxLen) * 100
}

// WordOverlap returns |A ∩ B| / |A ∪ B| * 100 for the whitespace-separated word sets of a and b
func WordOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	union := len(setA)
	intersection := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union) * 100
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

package fuzzy

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultThreshold is the similarity a keyword needs to count as contained.
const DefaultThreshold = 0.85

// Ratio returns 2*M/T where M is the number of code points in the matching
// blocks of a and b and T the total number of code points in both.
func Ratio(a, b string) float64 {
	matcher := difflib.NewMatcherWithJunk(runes(a), runes(b), false, nil)
	return matcher.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Contains reports whether keyword approximately occurs in tokens. The joined
// token text is compared with the whole keyword first, then every single
// token with the first keyword word.
func Contains(tokens []string, keyword string, threshold float64) bool {
	if keyword == "" || len(tokens) == 0 {
		return false
	}

	words := strings.Fields(keyword)
	if len(words) == 0 {
		return false
	}
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}

	text := strings.Join(tokens, " ")
	target := strings.Join(words, " ")

	if Ratio(text, target) >= threshold {
		return true
	}

	for _, tok := range tokens {
		if Ratio(tok, words[0]) >= threshold {
			return true
		}
	}

	return false
}

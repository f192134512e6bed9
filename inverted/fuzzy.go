package inverted

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// expandedToken is one vocabulary token matched during fuzzy expansion,
// together with its edit distance from the query token.
type expandedToken struct {
	token    string
	distance int
}

// fuzzyExpand matches a query token against the vocabulary within the
// given edit distance. Candidates must share an exact prefix of
// prefixLength runes with the query token. At most maxExpansions tokens
// are returned, preferring smaller distances and breaking ties
// lexicographically. fuzziness 0 degrades to exact lookup.
func fuzzyExpand(token string, vocab map[string]struct{}, fuzziness, prefixLength, maxExpansions int) []expandedToken {
	if fuzziness == 0 {
		if _, ok := vocab[token]; ok {
			return []expandedToken{{token: token}}
		}
		return nil
	}

	prefix := runePrefix(token, prefixLength)
	var matches []expandedToken
	for cand := range vocab {
		if !strings.HasPrefix(cand, prefix) {
			continue
		}
		d, ok := distanceWithin(token, cand, fuzziness)
		if !ok {
			continue
		}
		matches = append(matches, expandedToken{token: cand, distance: d})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].token < matches[j].token
	})
	if len(matches) > maxExpansions {
		matches = matches[:maxExpansions]
	}
	return matches
}

// distanceWithin reports the Levenshtein distance between a and b when it
// does not exceed limit. Length difference alone rules out most
// candidates without computing the full distance.
func distanceWithin(a, b string, limit int) (int, bool) {
	la, lb := runeLen(a), runeLen(b)
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > limit {
		return 0, false
	}
	d := levenshtein.ComputeDistance(a, b)
	if d > limit {
		return 0, false
	}
	return d, true
}

func runePrefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

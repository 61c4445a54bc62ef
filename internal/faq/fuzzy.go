package faq

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// processForFuzzy lowercases and replaces every non letter/digit with a space.
func processForFuzzy(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// ratio is 100 * 2*LCS / (len(a)+len(b)) over runes.
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 100 * float64(2*prev[len(rb)]) / float64(total)
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.Fields(s) {
		out[t] = struct{}{}
	}
	return out
}

func sortedJoin(set map[string]struct{}) string {
	toks := make([]string, 0, len(set))
	for t := range set {
		toks = append(toks, t)
	}
	sort.Strings(toks)
	return strings.Join(toks, " ")
}

// TokenSetRatio scores two strings 0-100 ignoring word order and repeated words.
// The shared tokens are compared against each side's full sorted token list and
// the best of the pairwise ratios wins.
func TokenSetRatio(a, b string) int {
	a, b = processForFuzzy(a), processForFuzzy(b)
	if a == "" || b == "" {
		return 0
	}
	ta, tb := tokenSet(a), tokenSet(b)
	inter := map[string]struct{}{}
	onlyA := map[string]struct{}{}
	onlyB := map[string]struct{}{}
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter[t] = struct{}{}
		} else {
			onlyA[t] = struct{}{}
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			onlyB[t] = struct{}{}
		}
	}
	sect := sortedJoin(inter)
	diffA := sortedJoin(onlyA)
	diffB := sortedJoin(onlyB)
	if sect != "" && (diffA == "" || diffB == "") {
		return 100
	}
	combinedA := strings.TrimSpace(sect + " " + diffA)
	combinedB := strings.TrimSpace(sect + " " + diffB)

	best := ratio(combinedA, combinedB)
	if sect != "" {
		best = math.Max(best, ratio(sect, combinedA))
		best = math.Max(best, ratio(sect, combinedB))
	}
	return int(math.Round(best))
}

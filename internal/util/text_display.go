package util

import (
	"sort"
	"strings"
	"unicode"
)

const defaultSnippetRunes = 240

var snippetStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {}, "how": {},
	"why": {}, "who": {}, "when": {}, "where": {}, "which": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "about": {}, "does": {}, "can": {}, "you": {}, "tell": {}, "summit": {},
}

// Snippet returns a one-line excerpt of a retrieved chunk for display. With a
// query, the sentences sharing the most terms with it are preferred.
func Snippet(text, query string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = defaultSnippetRunes
	}
	text = flatten(text)
	if text == "" {
		return ""
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return truncateRunes(text, maxRunes)
	}

	sentences := splitSentences(text)
	type scored struct {
		idx   int
		score int
	}
	list := make([]scored, len(sentences))
	for i, s := range sentences {
		low := strings.ToLower(s)
		n := 0
		for _, term := range terms {
			if strings.Contains(low, term) {
				n++
			}
		}
		list[i] = scored{idx: i, score: n}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	if list[0].score == 0 {
		return truncateRunes(text, maxRunes)
	}

	best := sentences[list[0].idx]
	// keep a second matching sentence in reading order
	if len(list) > 1 && list[1].score > 0 {
		a, b := list[0].idx, list[1].idx
		if a > b {
			a, b = b, a
		}
		best = sentences[a] + " " + sentences[b]
	}
	return truncateRunes(best, maxRunes)
}

// flatten drops control and non-printable runes and collapses whitespace.
func flatten(s string) string {
	s = SanitizeText(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func splitSentences(s string) []string {
	out := make([]string, 0, 8)
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			if x := strings.TrimSpace(s[start : i+1]); x != "" {
				out = append(out, x)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func queryTerms(q string) []string {
	seen := map[string]struct{}{}
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(q)) {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := snippetStopwords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

package util

import "strings"

// paragraphLookahead is the minimum chunk length before a paragraph break may end a chunk.
const paragraphLookahead = 200

// ChunkText splits text into windows of at most chunkSize runes. A window ends at
// the last blank line ("\n\n") past the first paragraphLookahead runes when one
// exists, otherwise at the hard limit. Consecutive windows share overlap runes.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	n := len(runes)
	out := make([]string, 0)
	for i := 0; i < n; {
		end := i + chunkSize
		if end > n {
			end = n
		}
		cut := lastParagraphBreak(runes, i+paragraphLookahead, end)
		if cut <= i {
			cut = end
		}
		part := strings.TrimSpace(string(runes[i:cut]))
		if part != "" {
			out = append(out, part)
		}
		if cut == n {
			break
		}
		next := cut - overlap
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return out
}

// lastParagraphBreak returns the start of the last "\n\n" lying entirely in runes[lo:hi], or -1.
func lastParagraphBreak(runes []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	for j := hi - 2; j >= lo; j-- {
		if runes[j] == '\n' && runes[j+1] == '\n' {
			return j
		}
	}
	return -1
}

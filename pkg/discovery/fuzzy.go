package discovery

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

type token struct {
	word string
	off  int
}

func tokenize(s string) []token {
	var tokens []token
	start := -1
	for i, r := range s {
		sep := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if sep {
			if start >= 0 {
				tokens = append(tokens, token{word: s[start:i], off: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{word: s[start:], off: start})
	}
	return tokens
}

// similarity is a levenshtein ratio in [0,1]; 1 means identical.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// bestMatch slides a window of len(needle tokens) over the text tokens and
// returns the best similarity plus the byte offset of that window. Both
// inputs are expected lowercased.
func bestMatch(text, needle string) (float64, int) {
	needle = strings.Join(strings.Fields(needle), " ")
	if needle == "" {
		return 0, -1
	}
	width := len(strings.Fields(needle))
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, -1
	}
	if width > len(tokens) {
		width = len(tokens)
	}

	best := 0.0
	bestOff := -1
	for i := 0; i+width <= len(tokens); i++ {
		var parts []string
		for j := i; j < i+width; j++ {
			parts = append(parts, tokens[j].word)
		}
		if r := similarity(strings.Join(parts, " "), needle); r > best {
			best = r
			bestOff = tokens[i].off
			if best == 1 {
				break
			}
		}
	}
	return best, bestOff
}

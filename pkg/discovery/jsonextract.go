package discovery

import (
	"encoding/json"
	"strings"
)

// Model responses are free text that should contain JSON, frequently wrapped
// in markdown code fences or surrounded by prose. DecodeFirst pulls the first
// well-formed JSON value out of such text and unmarshals it into v, returning
// false when no parseable value exists. Callers fall back to their empty
// default in that case; malformed model output is never fatal.
func DecodeFirst(text string, v any) bool {
	text = stripCodeFences(text)
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		end, ok := balancedEnd(text, i)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(text[i:end+1]), v); err == nil {
			return true
		}
		// A balanced span that still fails to parse; keep scanning after it.
		i = end
	}
	return false
}

// balancedEnd returns the index of the bracket closing the span opened at
// start, honoring string literals and escape sequences.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var out strings.Builder
	for i, part := range strings.Split(s, "```") {
		// Fenced blocks often open with a language tag like "json".
		if i%2 == 1 {
			if rest, ok := strings.CutPrefix(part, "json"); ok {
				part = rest
			}
		}
		out.WriteString(part)
		out.WriteString("\n")
	}
	return out.String()
}

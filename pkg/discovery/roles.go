package discovery

import "strings"

// Titles that mark a lead as running their own shop rather than being
// hireable for the role. Applied to structured results before validation and
// to web results after it, so every round sees the same filter.
var excludedRoleTerms = []string{
	"founder",
	"co-founder",
	"cofounder",
	"owner",
	"proprietor",
	"ceo",
	"chief executive",
	"president",
	"managing partner",
	"managing director",
}

// Hireable titles that embed an excluded term as a fragment. Stripped before
// matching so "Vice President of Engineering" and "Product Owner" pass.
var exemptRolePhrases = []string{
	"vice president",
	"product owner",
}

// Short terms that appear inside unrelated words ("voiceover", "copresident",
// "landowner") and therefore only match on word boundaries.
var boundaryRoleTerms = map[string]bool{
	"ceo":       true,
	"president": true,
	"owner":     true,
}

// IsExcludedRole reports whether a title matches the excluded-role lexicon.
func IsExcludedRole(title string) bool {
	t := strings.ToLower(title)
	for _, phrase := range exemptRolePhrases {
		t = strings.ReplaceAll(t, phrase, " ")
	}
	for _, term := range excludedRoleTerms {
		if !strings.Contains(t, term) {
			continue
		}
		if boundaryRoleTerms[term] && !containsWord(t, term) {
			continue
		}
		return true
	}
	return false
}

func containsWord(s, word string) bool {
	start := 0
	for {
		i := strings.Index(s[start:], word)
		if i < 0 {
			return false
		}
		i += start
		before := i == 0 || !isLetter(s[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(s) || !isLetter(s[afterIdx])
		if before && after {
			return true
		}
		start = i + len(word)
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»]`)
	reNonAllowed = regexp.MustCompile(`[^A-Z0-9X\-/\s.]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// NormalizeName folds a raw product string into the canonical form used
// for comparisons: upper case, dimension glyphs unified, punctuation
// stripped, whitespace collapsed.
func NormalizeName(input string) string {
	s := strings.ToUpper(input)
	repl := strings.NewReplacer("×", "X", "*", "X")
	s = repl.Replace(s)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CollapseSpaces trims and squeezes runs of whitespace to single spaces.
func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// Truncate shortens s to at most max bytes without splitting a UTF-8
// sequence mid-character.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Tokenize splits a normalized name into comparison tokens, dropping
// fragments shorter than two runes.
func Tokenize(input string) []string {
	parts := strings.Split(NormalizeName(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

package conditions

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims a keyword and collapses internal whitespace to single
// spaces. Case is preserved for display.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// foldKey is the identity used for de-duplication: normalized and lowercased,
// so "Wafer  Chip" and "wafer chip" are the same keyword.
func foldKey(s string) string {
	return strings.ToLower(Normalize(s))
}

// CountChars returns the character count as runes (not bytes).
// Descriptions are mostly CJK, where byte length overstates size threefold.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// Package sanitize is the single injection defense applied to every piece of
// user supplied text before it is stored or echoed back.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlEscaper = strings.NewReplacer(
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
		"&", "&amp;",
	)
	schemePattern  = regexp.MustCompile(`(?i)javascript:|data:|vbscript:`)
	controlPattern = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
)

// Text is Sanitize for callers that already hold a string.
func Text(input string, maxLength int) string {
	return Sanitize(input, maxLength)
}

// Sanitize returns "" for anything but a string. Strings are trimmed,
// truncated to maxLength runes, HTML escaped, stripped of script-bearing
// schemes and stripped of C0 control characters and DEL.
func Sanitize(input any, maxLength int) string {
	s, ok := input.(string)
	if !ok {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = truncate(strings.TrimSpace(s), maxLength)
	s = htmlEscaper.Replace(s)
	// Removing one occurrence can splice a new one together
	// ("javajavascript:script:"), so strip until stable.
	for {
		next := controlPattern.ReplaceAllString(schemePattern.ReplaceAllString(s, ""), "")
		if next == s {
			return s
		}
		s = next
	}
}

func truncate(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLength {
			return s[:i]
		}
		n++
	}
	return s
}

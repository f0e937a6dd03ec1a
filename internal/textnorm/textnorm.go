// Package textnorm holds the string folding shared by header matching,
// value cleanup and dedup keys.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	nonAlnumRe    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	nonDigitRe    = regexp.MustCompile(`\D+`)
	urlSchemeRe   = regexp.MustCompile(`^[a-z][a-z0-9+.-]*://`)
	legalSuffixRe = regexp.MustCompile(`(?:\s+(?:` + strings.Join(legalSuffixes, "|") + `))+$`)
)

// legalSuffixes are company forms stripped from names for name-only
// matching. They are matched on folded text, so punctuation is gone.
var legalSuffixes = []string{
	"s r l", "srl", "s p a", "spa", "s a s", "sas", "s n c", "snc", "s s", "ss",
	"ltd", "limited", "llc", "l l c", "inc", "incorporated", "corp", "corporation",
	"co", "plc", "gmbh", "ag", "sa", "sarl", "bv", "nv", "oy", "ab", "srls",
}

// CollapseSpaces trims s and collapses internal whitespace runs to one space.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// StripDiacritics removes combining marks after NFD decomposition.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold lowercases s, strips diacritics and turns every run of
// non-alphanumerics into a single space.
func Fold(s string) string {
	s = StripDiacritics(strings.ToLower(s))
	return strings.TrimSpace(nonAlnumRe.ReplaceAllString(s, " "))
}

// Compact is Fold without any separators, used for header comparison.
func Compact(s string) string {
	return strings.ReplaceAll(Fold(s), " ", "")
}

// NameKey is the folded form of a person or company name.
func NameKey(s string) string { return Fold(s) }

// BareNameKey is NameKey with trailing company legal forms removed. When
// the name is nothing but a legal form the unstripped key is returned.
func BareNameKey(s string) string {
	key := NameKey(s)
	bare := strings.TrimSpace(legalSuffixRe.ReplaceAllString(key, ""))
	if bare == "" {
		return key
	}
	return bare
}

// Digits keeps only decimal digits.
func Digits(s string) string { return nonDigitRe.ReplaceAllString(s, "") }

// URLKey lowercases a profile URL and strips scheme, www. and trailing
// slashes and query so different spellings of one profile compare equal.
func URLKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = urlSchemeRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "/")
}

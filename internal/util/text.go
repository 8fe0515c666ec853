package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces  = regexp.MustCompile(`\s+`)
	reCompare = regexp.MustCompile(`[^a-z0-9@.]`)
	reDigits  = regexp.MustCompile(`\D`)
)

// Standardize reduces a value to its comparison form: lowercase, trimmed,
// everything outside [a-z0-9@.] removed. An accented letter is removed
// with the rest, never folded to its base, so an accent respelling is a
// real difference. Used for equality checks only; stored values keep
// their display form.
func Standardize(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	return reCompare.ReplaceAllString(s, "")
}

// FoldDiacritics strips combining marks after canonical decomposition.
// Header suggestion uses it to see through accented export headers.
func FoldDiacritics(input string) string {
	decomposed := norm.NFD.String(input)
	out := strings.Builder{}
	out.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		out.WriteRune(r)
	}
	return norm.NFC.String(out.String())
}

// CollapseSpaces trims and squeezes whitespace runs (tabs included) to
// single spaces. Export headers sometimes carry stray tabs.
func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// Digits keeps only the decimal digits of the input.
func Digits(input string) string {
	return reDigits.ReplaceAllString(input, "")
}

// Capitalize upcases the first rune and lowercases the rest. Hyphens and
// apostrophes are not token boundaries, so "mary-jane" becomes "Mary-jane".
func Capitalize(input string) string {
	r := []rune(strings.ToLower(input))
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// CapitalizeWords applies Capitalize to each whitespace-separated token.
func CapitalizeWords(input string) string {
	parts := strings.Fields(input)
	for i, p := range parts {
		parts[i] = Capitalize(p)
	}
	return strings.Join(parts, " ")
}

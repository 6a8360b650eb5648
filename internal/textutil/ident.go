package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// IsIdentStart reports whether r may begin an identifier.
func IsIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// IsIdentPart reports whether r may continue an identifier.
func IsIdentPart(r rune) bool {
	return IsIdentStart(r) || IsDigit(r)
}

// IsIdentifier reports whether s matches [A-Za-z_][A-Za-z0-9_]*.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !IsIdentStart(r) {
			return false
		}
		if !IsIdentPart(r) {
			return false
		}
	}
	return true
}

// Fold returns the Unicode case folding of s. A cases.Caser is stateful, so
// a fresh one is built per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Casify folds s unless caseSensitive is set.
func Casify(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return Fold(s)
}

// IsBlank reports whether s holds nothing but white space.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// StripSpace removes every white space rune from s.
func StripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

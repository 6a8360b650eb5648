// Package textutil holds the small lexical helpers shared by the expression
// grammar and the chemical tokenizer: a position-tracking scanner, SI-suffixed
// number lexemes, identifier rules, case folding, multisets and exact ratios.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Scanner walks a source string rune by rune and remembers its byte offset.
// The zero value is not usable; create one with NewScanner.
type Scanner struct {
	src string
	pos int
}

// NewScanner returns a scanner positioned at the start of src.
func NewScanner(src string) *Scanner {
	return &Scanner{src: src}
}

// Pos returns the current byte offset.
func (s *Scanner) Pos() int { return s.pos }

// Reset moves the scanner back to a previously saved offset.
func (s *Scanner) Reset(pos int) { s.pos = pos }

// Done reports whether the whole input has been consumed.
func (s *Scanner) Done() bool { return s.pos >= len(s.src) }

// Rest returns the unconsumed input.
func (s *Scanner) Rest() string { return s.src[s.pos:] }

// Peek returns the next rune without consuming it, or utf8.RuneError at the end.
func (s *Scanner) Peek() rune {
	if s.Done() {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.pos:])
	return r
}

// Next consumes and returns one rune.
func (s *Scanner) Next() rune {
	if s.Done() {
		return utf8.RuneError
	}
	r, n := utf8.DecodeRuneInString(s.src[s.pos:])
	s.pos += n
	return r
}

// SkipSpace consumes any Unicode white space.
func (s *Scanner) SkipSpace() {
	for !s.Done() {
		r, n := utf8.DecodeRuneInString(s.src[s.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		s.pos += n
	}
}

// Accept consumes lit if the input continues with it.
func (s *Scanner) Accept(lit string) bool {
	if strings.HasPrefix(s.src[s.pos:], lit) {
		s.pos += len(lit)
		return true
	}
	return false
}

// AcceptAny tries each literal in order and consumes the first that matches.
// Callers list longer literals first when one is a prefix of another.
func (s *Scanner) AcceptAny(lits ...string) (string, bool) {
	for _, lit := range lits {
		if s.Accept(lit) {
			return lit, true
		}
	}
	return "", false
}

// AcceptWhile consumes the longest run of runes satisfying f and returns it.
func (s *Scanner) AcceptWhile(f func(rune) bool) string {
	start := s.pos
	for !s.Done() {
		r, n := utf8.DecodeRuneInString(s.src[s.pos:])
		if !f(r) {
			break
		}
		s.pos += n
	}
	return s.src[start:s.pos]
}

// IsDigit reports whether r is an ASCII decimal digit.
func IsDigit(r rune) bool { return r >= '0' && r <= '9' }

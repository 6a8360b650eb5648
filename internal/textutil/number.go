package textutil

import (
	"strconv"
	"strings"
)

// SISuffixes maps the fixed set of numeric suffixes to their scale factor.
var SISuffixes = map[string]float64{
	"%": 0.01,
	"k": 1e3,
	"M": 1e6,
	"G": 1e9,
	"T": 1e12,
	"c": 1e-2,
	"m": 1e-3,
	"u": 1e-6,
	"n": 1e-9,
	"p": 1e-12,
}

// Number is a numeral split into the parts it was written with.
type Number struct {
	Sign     string // "", "+" or "-"
	Mantissa string // "12", "12.5", "3." or ".5"
	Exponent string // digits with optional sign; empty when absent
	Suffix   string // one of SISuffixes; empty when absent
}

// HasExponent reports whether the numeral was written in E notation.
func (n Number) HasExponent() bool { return n.Exponent != "" }

// String reassembles the lexeme in canonical form.
func (n Number) String() string {
	var sb strings.Builder
	sb.WriteString(n.Sign)
	sb.WriteString(n.Mantissa)
	if n.Exponent != "" {
		sb.WriteString("E")
		sb.WriteString(n.Exponent)
	}
	sb.WriteString(n.Suffix)
	return sb.String()
}

// Float returns the value of the numeral with its suffix applied.
func (n Number) Float() float64 {
	lit := n.Sign + n.Mantissa
	if n.Exponent != "" {
		lit += "e" + n.Exponent
	}
	// Out-of-range literals parse to ±Inf or 0, matching float overflow elsewhere.
	v, _ := strconv.ParseFloat(lit, 64)
	if f, ok := SISuffixes[n.Suffix]; ok {
		v *= f
	}
	return v
}

// ScanNumber reads an unsigned numeral at the scanner position:
//
//	digits ["." [digits]] | "." digits, then [(E|e) [+|-] digits], then [suffix]
//
// On failure the scanner is left where it started.
func ScanNumber(s *Scanner) (Number, bool) {
	start := s.Pos()
	var n Number

	intPart := s.AcceptWhile(IsDigit)
	if intPart != "" {
		n.Mantissa = intPart
		if s.Accept(".") {
			n.Mantissa += "." + s.AcceptWhile(IsDigit)
		}
	} else {
		if !s.Accept(".") {
			return Number{}, false
		}
		frac := s.AcceptWhile(IsDigit)
		if frac == "" {
			s.Reset(start)
			return Number{}, false
		}
		n.Mantissa = "." + frac
	}

	expStart := s.Pos()
	if _, ok := s.AcceptAny("E", "e"); ok {
		sign, _ := s.AcceptAny("+", "-")
		digits := s.AcceptWhile(IsDigit)
		if digits == "" {
			s.Reset(expStart)
		} else {
			n.Exponent = sign + digits
		}
	}

	for suffix := range SISuffixes {
		if s.Accept(suffix) {
			n.Suffix = suffix
			break
		}
	}
	return n, true
}

// ParseNumber parses a complete signed numeral such as "-2.5k" or "1e-3".
func ParseNumber(src string) (Number, bool) {
	s := NewScanner(strings.TrimSpace(src))
	sign, _ := s.AcceptAny("+", "-")
	n, ok := ScanNumber(s)
	if !ok || !s.Done() {
		return Number{}, false
	}
	n.Sign = sign
	return n, true
}

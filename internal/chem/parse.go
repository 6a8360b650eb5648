package chem

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/pavelanni/capagrader/internal/textutil"
)

// ParseError reports chemical input that could not be read.
type ParseError struct {
	Source   string
	Position int
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse %q at position %d, expected %s", e.Source, e.Position, e.Expected)
}

type parser struct {
	src string
	s   *textutil.Scanner
}

// ParseExpression reads terms such as "2H2 + O2(g)" or "1/2 [Ni(NH3)4]^2+".
func ParseExpression(src string) (Expression, error) {
	p := &parser{src: src, s: textutil.NewScanner(src)}
	var expr Expression
	for {
		p.s.SkipSpace()
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		expr = append(expr, t)

		p.s.SkipSpace()
		if p.s.Done() {
			return expr, nil
		}
		if !p.s.Accept("+") {
			return nil, p.fail("'+' or end of input")
		}
	}
}

// ParseEquation reads two expressions joined by "->" or "<->".
func ParseEquation(src string) (Equation, error) {
	left, arrow, right := SplitOnArrow(src)
	if arrow == "" {
		return Equation{}, &ParseError{Source: src, Position: len(src), Expected: "an arrow"}
	}
	l, err := ParseExpression(left)
	if err != nil {
		return Equation{}, err
	}
	r, err := ParseExpression(right)
	if err != nil {
		return Equation{}, err
	}
	return Equation{Left: l, Arrow: arrow, Right: r}, nil
}

// SplitOnArrow cuts src at its first arrow. The reversible arrow is tried
// first since "->" is a suffix of it. The arrow is empty when none is found.
func SplitOnArrow(src string) (left string, arrow Arrow, right string) {
	src = strings.NewReplacer("⇌", "<->", "↔", "<->", "→", "->").Replace(src)
	for _, a := range []Arrow{ArrowReversible, ArrowForward} {
		if l, r, ok := strings.Cut(src, string(a)); ok {
			return l, a, r
		}
	}
	return src, "", ""
}

func (p *parser) fail(expected string) *ParseError {
	return &ParseError{Source: p.src, Position: p.s.Pos(), Expected: expected}
}

// term := [count] group [phase], count := digits ["/" digits]
func (p *parser) term() (Term, error) {
	coef := big.NewRat(1, 1)
	if textutil.IsDigit(p.s.Peek()) {
		start := p.s.Pos()
		lit := p.s.AcceptWhile(textutil.IsDigit)
		afterNum := p.s.Pos()
		p.s.SkipSpace()
		if p.s.Accept("/") {
			p.s.SkipSpace()
			den := p.s.AcceptWhile(textutil.IsDigit)
			if den == "" {
				return Term{}, p.fail("a denominator")
			}
			lit += "/" + den
		} else {
			p.s.Reset(afterNum)
		}
		r, ok := textutil.ParseRational(lit)
		if !ok || r.Sign() <= 0 {
			p.s.Reset(start)
			return Term{}, p.fail("a positive coefficient")
		}
		coef = r
		p.s.SkipSpace()
	}

	parts, err := p.group()
	if err != nil {
		return Term{}, err
	}
	m := Molecule{Parts: parts}

	beforePhase := p.s.Pos()
	p.s.SkipSpace()
	if ph, ok := p.s.AcceptAny(phases...); ok {
		m.Phase = strings.Trim(ph, "()")
	} else {
		p.s.Reset(beforePhase)
	}
	return Term{Coefficient: coef, Molecule: m}, nil
}

// group := suffixed+
func (p *parser) group() ([]Part, error) {
	var parts []Part
	for {
		part, ok, err := p.suffixed()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil, p.fail("an element or bracketed group")
	}
	return parts, nil
}

// suffixed := (element | "(" group ")" | "[" group "]") [digits] ["^" [digits] ("+"|"-")]
func (p *parser) suffixed() (Part, bool, error) {
	rest := p.s.Rest()
	for _, ph := range phases {
		if strings.HasPrefix(rest, ph) {
			return Part{}, false, nil
		}
	}

	var part Part
	switch r := p.s.Peek(); {
	case r == '(' || r == '[':
		p.s.Next()
		inner, err := p.group()
		if err != nil {
			return Part{}, false, err
		}
		if !p.s.Accept(string(closing(byte(r)))) {
			return Part{}, false, p.fail(fmt.Sprintf("'%c'", closing(byte(r))))
		}
		part = Part{Group: inner, Bracket: byte(r)}
	case r >= 'A' && r <= 'Z':
		sym := ""
		if len(rest) >= 2 && elements[rest[:2]] {
			sym = rest[:2]
		} else if elements[rest[:1]] {
			sym = rest[:1]
		} else {
			return Part{}, false, p.fail("an element symbol")
		}
		p.s.Accept(sym)
		part = Part{Element: sym}
	default:
		return Part{}, false, nil
	}

	part.Count = 1
	if digits := p.s.AcceptWhile(textutil.IsDigit); digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 {
			return Part{}, false, p.fail("a positive subscript")
		}
		part.Count = n
	}

	if p.s.Accept("^") {
		mag := 1
		if digits := p.s.AcceptWhile(textutil.IsDigit); digits != "" {
			n, err := strconv.Atoi(digits)
			if err != nil || n < 1 {
				return Part{}, false, p.fail("a positive charge")
			}
			mag = n
		}
		sign, ok := p.s.AcceptAny("+", "-")
		if !ok {
			return Part{}, false, p.fail("'+' or '-'")
		}
		part.Charge = mag
		if sign == "-" {
			part.Charge = -mag
		}
	}
	return part, true, nil
}

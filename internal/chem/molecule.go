// Package chem compares chemical expressions and equations the way a grader
// needs to: molecules are matched exactly, coefficients only up to a common
// positive ratio.
package chem

import (
	"math/big"
	"strconv"
	"strings"
)

// Part is one element or bracketed group with its subscript and charge.
type Part struct {
	Element string // set for a single element
	Group   []Part // set for a bracketed group
	Bracket byte   // '(' or '[' for groups

	Count  int // subscript, at least 1
	Charge int // signed ion charge, 0 when absent
}

// Molecule is a sequence of parts in written order plus an optional phase.
type Molecule struct {
	Parts []Part
	Phase string // "", "s", "l", "g" or "aq"
}

// Term is one coefficient-molecule pair of an expression.
type Term struct {
	Coefficient *big.Rat
	Molecule    Molecule
}

// Expression is a list of terms joined by "+".
type Expression []Term

// Arrow is the kind of arrow separating the sides of an equation.
type Arrow string

const (
	ArrowForward    Arrow = "->"
	ArrowReversible Arrow = "<->"
)

// Equation is a pair of expressions joined by an arrow.
type Equation struct {
	Left  Expression
	Arrow Arrow
	Right Expression
}

// Key returns the canonical spelling of the molecule. Two molecules are
// equal exactly when their keys are. The phase is left out when withPhase
// is false.
func (m Molecule) Key(withPhase bool) string {
	var sb strings.Builder
	writeParts(&sb, m.Parts)
	if withPhase && m.Phase != "" {
		sb.WriteString("(" + m.Phase + ")")
	}
	return sb.String()
}

func (m Molecule) String() string { return m.Key(true) }

func writeParts(sb *strings.Builder, parts []Part) {
	for _, p := range parts {
		if p.Element != "" {
			sb.WriteString(p.Element)
		} else {
			sb.WriteByte(p.Bracket)
			writeParts(sb, p.Group)
			sb.WriteByte(closing(p.Bracket))
		}
		if p.Count != 1 {
			sb.WriteString(strconv.Itoa(p.Count))
		}
		if p.Charge != 0 {
			sb.WriteString("^" + chargeString(p.Charge))
		}
	}
}

func chargeString(c int) string {
	sign := "+"
	if c < 0 {
		sign, c = "-", -c
	}
	if c == 1 {
		return sign
	}
	return strconv.Itoa(c) + sign
}

func closing(b byte) byte {
	if b == '[' {
		return ']'
	}
	return ')'
}

func (t Term) String() string {
	if t.Coefficient.Cmp(big.NewRat(1, 1)) == 0 {
		return t.Molecule.String()
	}
	return t.Coefficient.RatString() + t.Molecule.String()
}

func (e Expression) String() string {
	parts := make([]string, len(e))
	for i, t := range e {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}

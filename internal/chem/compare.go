package chem

import (
	"math/big"
	"sort"
)

type keyed struct {
	key  string
	coef *big.Rat
}

func (e Expression) keyed(ignoreState bool) []keyed {
	out := make([]keyed, len(e))
	for i, t := range e {
		out[i] = keyed{key: t.Molecule.Key(!ignoreState), coef: t.Coefficient}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key < out[j].key
		}
		return out[i].coef.Cmp(out[j].coef) < 0
	})
	return out
}

// Ratio returns k such that every coefficient of a is k times the matching
// coefficient of b. It fails when the molecules do not pair up one to one or
// when no single k fits.
func Ratio(a, b Expression, ignoreState bool) (*big.Rat, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return nil, false
	}
	ka, kb := a.keyed(ignoreState), b.keyed(ignoreState)
	var k *big.Rat
	for i := range ka {
		if ka[i].key != kb[i].key {
			return nil, false
		}
		r := new(big.Rat).Quo(ka[i].coef, kb[i].coef)
		if k == nil {
			k = r
		} else if k.Cmp(r) != 0 {
			return nil, false
		}
	}
	return k, true
}

// DivideExpression parses both sides and returns their coefficient ratio
// a/b. Unparseable input reports false.
func DivideExpression(a, b string, ignoreState bool) (*big.Rat, bool) {
	ea, err := ParseExpression(a)
	if err != nil {
		return nil, false
	}
	eb, err := ParseExpression(b)
	if err != nil {
		return nil, false
	}
	return Ratio(ea, eb, ignoreState)
}

// CompareExpression reports whether a and b list the same molecules with the
// same coefficients, in any order.
func CompareExpression(a, b string, ignoreState bool) bool {
	k, ok := DivideExpression(a, b, ignoreState)
	return ok && k.Cmp(big.NewRat(1, 1)) == 0
}

// CompareEquations reports whether two equations agree up to reordering and
// one common scale factor on both sides. With exact set the factor must be 1.
// Phases always take part in the comparison.
func CompareEquations(a, b string, exact bool) bool {
	ea, err := ParseEquation(a)
	if err != nil {
		return false
	}
	eb, err := ParseEquation(b)
	if err != nil {
		return false
	}
	if ea.Arrow != eb.Arrow {
		return false
	}
	left, ok := Ratio(ea.Left, eb.Left, false)
	if !ok {
		return false
	}
	right, ok := Ratio(ea.Right, eb.Right, false)
	if !ok || left.Cmp(right) != 0 {
		return false
	}
	return !exact || left.Cmp(big.NewRat(1, 1)) == 0
}

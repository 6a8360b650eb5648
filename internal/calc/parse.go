package calc

import (
	"sort"
	"unicode/utf8"

	"github.com/pavelanni/capagrader/internal/textutil"
)

const expectAtom = "a number, variable, function or '('"

type parser struct {
	src string
	s   *textutil.Scanner
	t   *Tree
}

// Parse builds the expression tree for src. Whitespace between tokens is
// ignored. A blank source yields a tree whose Root is nil. The referenced
// identifiers are recorded folded unless caseSensitive is set.
func Parse(src string, caseSensitive bool) (*Tree, error) {
	t := &Tree{
		Source:        src,
		caseSensitive: caseSensitive,
		variables:     map[string]string{},
		functions:     map[string]string{},
	}
	if textutil.IsBlank(src) {
		return t, nil
	}
	p := &parser{src: src, s: textutil.NewScanner(src), t: t}
	root, err := p.sum()
	if err != nil {
		return nil, err
	}
	p.s.SkipSpace()
	if !p.s.Done() {
		return nil, p.fail("an operator or end of input")
	}
	t.Root = root
	return t, nil
}

func (p *parser) fail(expected string) *ParseError {
	found := ""
	if !p.s.Done() {
		r := p.s.Peek()
		found = string(r)
		if r == utf8.RuneError {
			found = p.s.Rest()[:1]
		}
	}
	return &ParseError{Source: p.src, Position: p.s.Pos(), Expected: expected, Found: found}
}

// sum := [+|-] product ((+|-) product)*
func (p *parser) sum() (*Node, error) {
	n := &Node{Kind: KindSum}
	p.s.SkipSpace()
	op, _ := p.s.AcceptAny("+", "-")
	for {
		child, err := p.product()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
		n.Ops = append(n.Ops, op)

		p.s.SkipSpace()
		var ok bool
		if op, ok = p.s.AcceptAny("+", "-"); !ok {
			return n, nil
		}
	}
}

// product := parallel ((*|/) parallel)*
func (p *parser) product() (*Node, error) {
	return p.binary(KindProduct, p.parallel, "*", "/")
}

// parallel := power (|| power)*
func (p *parser) parallel() (*Node, error) {
	return p.binary(KindParallel, p.power, "||")
}

// power := atom (^ atom)*, folded right to left by the walkers.
func (p *parser) power() (*Node, error) {
	return p.binary(KindPower, p.atom, "^")
}

func (p *parser) binary(kind Kind, operand func() (*Node, error), ops ...string) (*Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	n := &Node{Kind: kind, Children: []*Node{first}}
	for {
		p.s.SkipSpace()
		op, ok := p.s.AcceptAny(ops...)
		if !ok {
			return n, nil
		}
		child, err := operand()
		if err != nil {
			return nil, err
		}
		n.Ops = append(n.Ops, op)
		n.Children = append(n.Children, child)
	}
}

// atom := number | name "(" sum ")" | name | "(" sum ")"
func (p *parser) atom() (*Node, error) {
	p.s.SkipSpace()
	start := p.s.Pos()
	r := p.s.Peek()

	switch {
	case r == '.' || textutil.IsDigit(r):
		num, ok := textutil.ScanNumber(p.s)
		if !ok {
			p.s.Reset(start)
			return nil, p.fail(expectAtom)
		}
		return &Node{Kind: KindNumber, Number: num}, nil

	case textutil.IsIdentStart(r):
		name := p.s.AcceptWhile(textutil.IsIdentPart)
		afterName := p.s.Pos()
		p.s.SkipSpace()
		if !p.s.Accept("(") {
			p.s.Reset(afterName)
			p.record(p.t.variables, name)
			return &Node{Kind: KindVariable, Name: name}, nil
		}
		arg, err := p.sum()
		if err != nil {
			return nil, err
		}
		if err := p.closeParen(); err != nil {
			return nil, err
		}
		p.record(p.t.functions, name)
		return &Node{Kind: KindFunction, Name: name, Children: []*Node{arg}}, nil

	case r == '(':
		p.s.Next()
		inner, err := p.sum()
		if err != nil {
			return nil, err
		}
		if err := p.closeParen(); err != nil {
			return nil, err
		}
		return &Node{Kind: KindAtom, Children: []*Node{inner}}, nil
	}
	return nil, p.fail(expectAtom)
}

func (p *parser) closeParen() error {
	p.s.SkipSpace()
	if !p.s.Accept(")") {
		return p.fail("')'")
	}
	return nil
}

func (p *parser) record(set map[string]string, name string) {
	key := textutil.Casify(name, p.t.caseSensitive)
	if _, ok := set[key]; !ok {
		set[key] = name
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

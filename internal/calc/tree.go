// Package calc parses and evaluates the arithmetic expression language used
// by numerical and formula responses: numbers with SI suffixes, variables,
// single-argument functions, + - * / ^ and the parallel operator ||.
package calc

import (
	"strings"

	"github.com/pavelanni/capagrader/internal/textutil"
)

// Kind identifies the production a Node was built from.
type Kind int

const (
	KindNumber Kind = iota
	KindVariable
	KindFunction
	KindAtom // parenthesized sub-expression
	KindPower
	KindParallel
	KindProduct
	KindSum
)

var kindNames = [...]string{"number", "variable", "function", "atom", "power", "parallel", "product", "sum"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is one vertex of a parsed expression. Precedence is fixed by the shape
// of the tree: a sum holds products, a product holds parallels, a parallel
// holds powers and a power holds atoms, numbers, variables or functions.
type Node struct {
	Kind Kind

	// Number is set for KindNumber.
	Number textutil.Number
	// Name is the identifier as written, for KindVariable and KindFunction.
	Name string

	Children []*Node

	// Ops holds operator tokens. For a sum it is parallel to Children and
	// each entry is the sign written before that child ("" when none). For
	// the other binary kinds Ops[i] sits between Children[i] and Children[i+1].
	Ops []string
}

// String prints the node fully parenthesized, which makes the parsed
// precedence visible.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	switch n.Kind {
	case KindNumber:
		sb.WriteString(n.Number.String())
	case KindVariable:
		sb.WriteString(n.Name)
	case KindFunction:
		sb.WriteString(n.Name)
		sb.WriteString("(")
		n.Children[0].write(sb)
		sb.WriteString(")")
	case KindAtom:
		n.Children[0].write(sb)
	default:
		if len(n.Children) == 1 && (n.Kind != KindSum || n.Ops[0] == "") {
			n.Children[0].write(sb)
			return
		}
		sb.WriteString("(")
		for i, c := range n.Children {
			switch {
			case n.Kind == KindSum:
				if n.Ops[i] != "" {
					sb.WriteString(n.Ops[i])
				}
			case i > 0:
				sb.WriteString(n.Ops[i-1])
			}
			c.write(sb)
		}
		sb.WriteString(")")
	}
}

// Tree is a parsed expression together with the identifiers it references.
type Tree struct {
	Source string
	Root   *Node

	caseSensitive bool
	// folded name -> name as first written
	variables map[string]string
	functions map[string]string
}

// Empty reports whether the source held no expression at all.
func (t *Tree) Empty() bool { return t.Root == nil }

// CaseSensitive reports the case mode the tree was parsed with.
func (t *Tree) CaseSensitive() bool { return t.caseSensitive }

// VariablesUsed returns the variable names referenced by the expression,
// folded according to the tree's case mode.
func (t *Tree) VariablesUsed() []string { return sortedKeys(t.variables) }

// FunctionsUsed returns the function names referenced by the expression,
// folded according to the tree's case mode.
func (t *Tree) FunctionsUsed() []string { return sortedKeys(t.functions) }

// Check returns an *UndefinedSymbol naming every referenced variable or
// function missing from the given environment. Environment keys must already
// be folded for case-insensitive trees.
func (t *Tree) Check(hasVariable, hasFunction func(string) bool) error {
	var bad []string
	for folded, raw := range t.variables {
		if !hasVariable(folded) {
			bad = append(bad, raw)
		}
	}
	for folded, raw := range t.functions {
		if !hasFunction(folded) {
			bad = append(bad, raw)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return newUndefinedSymbol(bad)
}

package calc

import (
	"math"
	"math/cmplx"

	"github.com/pavelanni/capagrader/internal/textutil"
)

// Config is the environment an Evaluator is built with. The supplied
// variables and functions are overlaid on the defaults.
type Config struct {
	Variables     map[string]complex128
	Functions     map[string]Func
	CaseSensitive bool
}

// Evaluator computes expression values in a fixed environment. It is not
// modified after New and may be shared between goroutines.
type Evaluator struct {
	vars          map[string]complex128
	funcs         map[string]Func
	caseSensitive bool
}

// New composes the default environment with cfg. When the configuration is
// case-insensitive every key is folded; a supplied name wins over a default
// that folds to the same key.
func New(cfg Config) *Evaluator {
	e := &Evaluator{
		vars:          make(map[string]complex128),
		funcs:         make(map[string]Func),
		caseSensitive: cfg.CaseSensitive,
	}
	for k, v := range DefaultVariables() {
		e.vars[textutil.Casify(k, e.caseSensitive)] = v
	}
	for k, v := range cfg.Variables {
		e.vars[textutil.Casify(k, e.caseSensitive)] = v
	}
	for k, f := range DefaultFunctions() {
		e.funcs[textutil.Casify(k, e.caseSensitive)] = f
	}
	for k, f := range cfg.Functions {
		e.funcs[textutil.Casify(k, e.caseSensitive)] = f
	}
	return e
}

// Evaluate parses and evaluates src. A blank source evaluates to NaN.
// Unknown identifiers fail with *UndefinedSymbol before anything is computed.
func Evaluate(src string, variables map[string]complex128, functions map[string]Func, caseSensitive bool) (complex128, error) {
	return New(Config{Variables: variables, Functions: functions, CaseSensitive: caseSensitive}).Evaluate(src)
}

// Evaluate parses src and computes its value.
func (e *Evaluator) Evaluate(src string) (complex128, error) {
	t, err := Parse(src, e.caseSensitive)
	if err != nil {
		return 0, err
	}
	return e.EvaluateTree(t)
}

// EvaluateTree computes the value of an already parsed tree. The tree must
// have been parsed with the evaluator's case mode.
func (e *Evaluator) EvaluateTree(t *Tree) (complex128, error) {
	if t.Empty() {
		return complex(math.NaN(), 0), nil
	}
	if err := e.Check(t); err != nil {
		return 0, err
	}
	return e.eval(t.Root), nil
}

// Check validates the identifiers of t against the environment.
func (e *Evaluator) Check(t *Tree) error {
	return t.Check(
		func(name string) bool { _, ok := e.vars[name]; return ok },
		func(name string) bool { _, ok := e.funcs[name]; return ok },
	)
}

func (e *Evaluator) eval(n *Node) complex128 {
	switch n.Kind {
	case KindNumber:
		return complex(n.Number.Float(), 0)
	case KindVariable:
		return e.vars[textutil.Casify(n.Name, e.caseSensitive)]
	case KindFunction:
		return e.funcs[textutil.Casify(n.Name, e.caseSensitive)](e.eval(n.Children[0]))
	case KindAtom:
		return e.eval(n.Children[0])
	case KindPower:
		v := e.eval(n.Children[len(n.Children)-1])
		for i := len(n.Children) - 2; i >= 0; i-- {
			v = pow(e.eval(n.Children[i]), v)
		}
		return v
	case KindParallel:
		return e.evalParallel(n)
	case KindProduct:
		v := e.eval(n.Children[0])
		for i, op := range n.Ops {
			x := e.eval(n.Children[i+1])
			if op == "/" {
				v = div(v, x)
			} else {
				v = mul(v, x)
			}
		}
		return v
	case KindSum:
		var v complex128
		for i, c := range n.Children {
			if n.Ops[i] == "-" {
				v = sub(v, e.eval(c))
			} else {
				v += e.eval(c)
			}
		}
		return v
	}
	return complex(math.NaN(), 0)
}

func (e *Evaluator) evalParallel(n *Node) complex128 {
	if len(n.Children) == 1 {
		return e.eval(n.Children[0])
	}
	vals := make([]complex128, len(n.Children))
	for i, c := range n.Children {
		vals[i] = e.eval(c)
		if vals[i] == 0 {
			return complex(math.NaN(), 0)
		}
	}
	var total complex128
	for _, v := range vals {
		total += div(1, v)
	}
	return div(1, total)
}

// The arithmetic helpers keep real operands on the float64 path so that
// infinities do not pick up NaN imaginary parts from complex multiplication.

func sub(a, b complex128) complex128 {
	if imag(a) == 0 && imag(b) == 0 {
		return complex(real(a)-real(b), 0)
	}
	return a - b
}

func mul(a, b complex128) complex128 {
	if imag(a) == 0 && imag(b) == 0 {
		return complex(real(a)*real(b), 0)
	}
	return a * b
}

func div(a, b complex128) complex128 {
	if imag(a) == 0 && imag(b) == 0 {
		return complex(real(a)/real(b), 0)
	}
	return a / b
}

func pow(base, exp complex128) complex128 {
	if imag(base) == 0 && imag(exp) == 0 {
		x, y := real(base), real(exp)
		if x >= 0 || y == math.Trunc(y) || math.IsNaN(x) {
			return complex(math.Pow(x, y), 0)
		}
	}
	return cmplx.Pow(base, exp)
}

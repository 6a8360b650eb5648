// Package preview renders expressions of the calc language as LaTeX so a
// learner can check what was typed before submitting.
package preview

import (
	"fmt"
	"strings"

	"github.com/pavelanni/capagrader/internal/calc"
	"github.com/pavelanni/capagrader/internal/textutil"
)

// Rendered is the LaTeX produced for one node.
type Rendered struct {
	Latex string
	// SansParens is Latex without an outer pair of parentheses, for places
	// such as \frac and \sqrt that already delimit their argument.
	SansParens string
	// Tall marks output containing a fraction or exponent; parentheses
	// around tall content are sized with \left and \right.
	Tall bool
}

func plain(latex string, tall bool) Rendered {
	return Rendered{Latex: latex, SansParens: latex, Tall: tall}
}

var greek = func() map[string]bool {
	letters := strings.Fields("alpha beta gamma delta epsilon varepsilon zeta eta theta " +
		"vartheta iota kappa lambda mu nu xi pi rho sigma tau upsilon " +
		"phi varphi chi psi omega")
	m := make(map[string]bool, 2*len(letters)+2)
	for _, l := range letters {
		m[l] = true
		m[strings.ToUpper(l[:1])+l[1:]] = true
	}
	m["hbar"] = true
	m["infty"] = true
	return m
}()

// Config lists the identifiers the renderer should recognize. Known names
// are printed with the spelling given here when the case mode is insensitive.
type Config struct {
	Variables     []string
	Functions     []string
	CaseSensitive bool
}

// Renderer turns expression sources into LaTeX. It holds no mutable state.
type Renderer struct {
	caseSensitive bool
	variables     map[string]string
	functions     map[string]string
}

// New creates a Renderer for cfg.
func New(cfg Config) *Renderer {
	r := &Renderer{
		caseSensitive: cfg.CaseSensitive,
		variables:     make(map[string]string, len(cfg.Variables)),
		functions:     make(map[string]string, len(cfg.Functions)),
	}
	for _, v := range cfg.Variables {
		r.variables[textutil.Casify(v, r.caseSensitive)] = v
	}
	for _, f := range cfg.Functions {
		r.functions[textutil.Casify(f, r.caseSensitive)] = f
	}
	return r
}

// RenderLatex parses src and renders it. A blank source renders to "".
// Unknown identifiers are rendered like known ones; only parse failures
// return an error.
func RenderLatex(src string, variables, functions []string, caseSensitive bool) (string, error) {
	return New(Config{Variables: variables, Functions: functions, CaseSensitive: caseSensitive}).Render(src)
}

// Render parses src and renders it.
func (r *Renderer) Render(src string) (string, error) {
	t, err := calc.Parse(src, r.caseSensitive)
	if err != nil {
		return "", err
	}
	if t.Empty() {
		return "", nil
	}
	return r.render(t.Root).Latex, nil
}

func (r *Renderer) render(n *calc.Node) Rendered {
	switch n.Kind {
	case calc.KindNumber:
		return renderNumber(n.Number)
	case calc.KindVariable:
		return plain(renderVarname(r.spell(r.variables, n.Name)), false)
	case calc.KindFunction:
		return r.renderFunction(n)
	case calc.KindAtom:
		inner := r.render(n.Children[0])
		return Rendered{Latex: wrapParens(inner.SansParens, inner.Tall), SansParens: inner.SansParens, Tall: inner.Tall}
	}

	kids := make([]Rendered, len(n.Children))
	for i, c := range n.Children {
		kids[i] = r.render(c)
	}
	if len(kids) == 1 && (n.Kind != calc.KindSum || n.Ops[0] == "") {
		return kids[0]
	}
	switch n.Kind {
	case calc.KindPower:
		return renderPower(kids)
	case calc.KindParallel:
		return renderJoined(kids, ` \| `)
	case calc.KindProduct:
		return renderProduct(kids, n.Ops)
	default:
		return renderSum(kids, n.Ops)
	}
}

func (r *Renderer) spell(known map[string]string, name string) string {
	if r.caseSensitive {
		return name
	}
	if s, ok := known[textutil.Fold(name)]; ok {
		return s
	}
	return name
}

func renderNumber(num textutil.Number) Rendered {
	suffix := ""
	if num.Suffix != "" {
		suffix = `\text{` + num.Suffix + `}`
	}
	mantissa := num.Sign + num.Mantissa
	if num.HasExponent() {
		return plain(fmt.Sprintf(`%s\!\times\!10^{%s}%s`, mantissa, num.Exponent, suffix), true)
	}
	return plain(mantissa+suffix, false)
}

func enrichVarname(name string) string {
	if greek[name] {
		return `\` + name
	}
	return strings.ReplaceAll(name, "_", `\_`)
}

// renderVarname subscripts on the first underscore: x_01 becomes x_{01}.
func renderVarname(name string) string {
	first, second, ok := strings.Cut(name, "_")
	if !ok || first == "" || second == "" {
		return enrichVarname(name)
	}
	return enrichVarname(first) + "_{" + enrichVarname(second) + "}"
}

func (r *Renderer) renderFunction(n *calc.Node) Rendered {
	arg := r.render(n.Children[0])
	name := r.spell(r.functions, n.Name)
	var fname string
	switch name {
	case "sqrt":
		return plain(`\sqrt{`+arg.SansParens+`}`, arg.Tall)
	case "log10":
		fname = `\log_{10}`
	case "log2":
		fname = `\log_{2}`
	default:
		fname = `\text{` + strings.ReplaceAll(name, "_", `\_`) + `}`
	}
	return plain(fname+wrapParens(arg.SansParens, arg.Tall), arg.Tall)
}

func wrapParens(inner string, tall bool) string {
	if tall {
		return `\left(` + inner + `\right)`
	}
	return "(" + inner + ")"
}

// renderPower folds right to left: a^b^c becomes {a}^{{b}^{{c}}}.
func renderPower(kids []Rendered) Rendered {
	latex := "{" + kids[len(kids)-1].SansParens + "}"
	for i := len(kids) - 2; i >= 0; i-- {
		latex = "{" + kids[i].Latex + "}^{" + latex + "}"
	}
	return plain(latex, true)
}

func renderJoined(kids []Rendered, sep string) Rendered {
	parts := make([]string, len(kids))
	tall := false
	for i, k := range kids {
		parts[i] = k.Latex
		tall = tall || k.Tall
	}
	return plain(strings.Join(parts, sep), tall)
}

func renderSum(kids []Rendered, ops []string) Rendered {
	var sb strings.Builder
	tall := false
	for i, k := range kids {
		sb.WriteString(ops[i])
		sb.WriteString(k.Latex)
		tall = tall || k.Tall
	}
	return plain(sb.String(), tall)
}

// renderProduct gathers runs of divisors into a shared fraction. A "*"
// after a divisor closes the current fraction; a "/" after a factor opens
// one, so a*b/c*d renders as \frac{a\cdot b}{c}\cdot d.
func renderProduct(kids []Rendered, ops []string) Rendered {
	var (
		sb          strings.Builder
		numerator   = []Rendered{kids[0]}
		denominator []Rendered
		inFraction  bool
		everFrac    bool
	)
	for i, op := range ops {
		kid := kids[i+1]
		switch {
		case op == "/":
			inFraction, everFrac = true, true
			denominator = append(denominator, kid)
		case inFraction:
			sb.WriteString(renderFrac(numerator, denominator))
			sb.WriteString(`\cdot `)
			numerator, denominator, inFraction = []Rendered{kid}, nil, false
		default:
			numerator = append(numerator, kid)
		}
	}
	if inFraction {
		sb.WriteString(renderFrac(numerator, denominator))
	} else {
		sb.WriteString(joinLatex(numerator))
	}

	tall := everFrac
	for _, k := range kids {
		tall = tall || k.Tall
	}
	return plain(sb.String(), tall)
}

func renderFrac(numerator, denominator []Rendered) string {
	return `\frac{` + fracPart(numerator) + `}{` + fracPart(denominator) + `}`
}

func fracPart(ks []Rendered) string {
	if len(ks) == 1 {
		return ks[0].SansParens
	}
	return joinLatex(ks)
}

func joinLatex(ks []Rendered) string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = k.Latex
	}
	return strings.Join(parts, `\cdot `)
}

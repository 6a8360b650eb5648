package preview

import (
	"errors"
	"testing"

	"github.com/pavelanni/capagrader/internal/calc"
)

func TestRenderLatex(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", ""},
		{"number", "12.5", "12.5"},
		{"suffix", "5k", `5\text{k}`},
		{"exponent", "1.5e-3", `1.5\!\times\!10^{-3}`},
		{"exponent with suffix", "2E3m", `2\!\times\!10^{3}\text{m}`},
		{"sum", "a+b-c", "a+b-c"},
		{"unary minus", "-x", "-x"},
		{"fraction pair", "a/b*c/d", `\frac{a}{b}\cdot \frac{c}{d}`},
		{"shared numerator", "a*b/c", `\frac{a\cdot b}{c}`},
		{"shared denominator", "a/b/c", `\frac{a}{b\cdot c}`},
		{"trailing factor", "a/b*c", `\frac{a}{b}\cdot c`},
		{"plain product", "a*b*c", `a\cdot b\cdot c`},
		{"parenthesized numerator loses parens", "(a+b)/c", `\frac{a+b}{c}`},
		{"power", "a^b", `{a}^{{b}}`},
		{"right folded power", "a^b^c", `{a}^{{b}^{{c}}}`},
		{"power drops exponent parens", "2^(x+1)", `{2}^{{x+1}}`},
		{"parallel", "a||b||c", `a \| b \| c`},
		{"greek", "alpha+Omega", `\alpha+\Omega`},
		{"hbar", "hbar*omega", `\hbar\cdot \omega`},
		{"subscript", "R_1", `R_{1}`},
		{"greek subscript", "theta_max", `\theta_{max}`},
		{"second underscore escapes", "x_a_b", `x_{a\_b}`},
		{"sqrt", "sqrt(x)", `\sqrt{x}`},
		{"log10", "log10(x)", `\log_{10}(x)`},
		{"log2", "log2(x)", `\log_{2}(x)`},
		{"other function", "sin(x)", `\text{sin}(x)`},
		{"tall function argument", "sin(x^2)", `\text{sin}\left({x}^{{2}}\right)`},
		{"tall parens", "(a/b)+1", `\left(\frac{a}{b}\right)+1`},
		{"unknown names are fine", "foo(bar)", `\text{foo}(bar)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderLatex(tt.src, nil, nil, true)
			if err != nil {
				t.Fatalf("RenderLatex(%q): %v", tt.src, err)
			}
			if got != tt.want {
				t.Errorf("RenderLatex(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestRenderKnownSpelling(t *testing.T) {
	got, err := RenderLatex("Omega*r", []string{"omega", "R"}, nil, false)
	if err != nil {
		t.Fatalf("RenderLatex: %v", err)
	}
	if want := `\omega\cdot R`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderParseError(t *testing.T) {
	_, err := RenderLatex("1+", nil, nil, false)
	var pe *calc.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *calc.ParseError, got %v", err)
	}
}

// Whatever the evaluator accepts the renderer accepts too.
func TestRenderAndEvaluateAgree(t *testing.T) {
	sources := []string{"2^3^2", "1||2", "sqrt(-4)*i", "5k/3m", "-(1+2)/(3-4)^2", "pi*e"}
	for _, src := range sources {
		if _, err := calc.Evaluate(src, nil, nil, false); err != nil {
			t.Errorf("Evaluate(%q): %v", src, err)
		}
		if _, err := RenderLatex(src, nil, nil, false); err != nil {
			t.Errorf("RenderLatex(%q): %v", src, err)
		}
	}
}

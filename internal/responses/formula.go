package responses

import (
	"errors"
	"fmt"
	"html"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/pavelanni/capagrader/internal/calc"
)

// Samples describes the points a formula is checked at: each variable is
// drawn uniformly from [Lower[i], Upper[i]], Count times.
type Samples struct {
	Variables []string
	Lower     []float64
	Upper     []float64
	Count     int
}

// ParseSamples reads the vars@lower:upper#count form, for example
// x,y@1,2:3,4#10.
func ParseSamples(s string) (Samples, error) {
	vars, rest, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return Samples{}, fmt.Errorf("samples %q: missing @", s)
	}
	ranges, count, ok := strings.Cut(rest, "#")
	if !ok {
		return Samples{}, fmt.Errorf("samples %q: missing #", s)
	}
	lower, upper, ok := strings.Cut(ranges, ":")
	if !ok {
		return Samples{}, fmt.Errorf("samples %q: missing :", s)
	}

	var out Samples
	for _, v := range strings.Split(vars, ",") {
		out.Variables = append(out.Variables, strings.TrimSpace(v))
	}
	var err error
	if out.Lower, err = parseFloats(lower); err != nil {
		return Samples{}, fmt.Errorf("samples %q: %w", s, err)
	}
	if out.Upper, err = parseFloats(upper); err != nil {
		return Samples{}, fmt.Errorf("samples %q: %w", s, err)
	}
	if len(out.Lower) != len(out.Variables) || len(out.Upper) != len(out.Variables) {
		return Samples{}, fmt.Errorf("samples %q: %d variables but %d/%d bounds", s, len(out.Variables), len(out.Lower), len(out.Upper))
	}
	if out.Count, err = strconv.Atoi(strings.TrimSpace(count)); err != nil || out.Count < 1 {
		return Samples{}, fmt.Errorf("samples %q: invalid count %q", s, count)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bound %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

// Draw returns Count variable assignments.
func (s Samples) Draw(r *rand.Rand) []map[string]complex128 {
	out := make([]map[string]complex128, s.Count)
	for i := range out {
		vars := make(map[string]complex128, len(s.Variables))
		for j, name := range s.Variables {
			lo, hi := s.Lower[j], s.Upper[j]
			vars[name] = complex(lo+r.Float64()*(hi-lo), 0)
		}
		out[i] = vars
	}
	return out
}

// FormulaOptions configures GradeFormula.
type FormulaOptions struct {
	Samples       string
	Tolerance     string
	CaseSensitive bool
	// Rand draws the sample points. Nil uses a randomly seeded source.
	Rand *rand.Rand
}

// GradeFormula evaluates expected and student at the same random sample
// points and accepts when every pair agrees within the tolerance.
func GradeFormula(expected, student string, opts FormulaOptions) (Result, error) {
	samples, err := ParseSamples(opts.Samples)
	if err != nil {
		return Result{}, staffError(err, "%v", err)
	}
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	points := samples.Draw(r)

	studentVals, err := evaluateAt(student, points, opts.CaseSensitive)
	if err != nil {
		return Result{}, err
	}
	staffVals, err := evaluateAt(expected, points, opts.CaseSensitive)
	if err != nil {
		return Result{}, staffError(err, "%v", err)
	}
	for i := range points {
		ok, err := CompareWithTolerance(studentVals[i], staffVals[i], opts.Tolerance, false)
		if err != nil {
			return Result{}, staffError(err, "invalid tolerance %q", opts.Tolerance)
		}
		if !ok {
			return incorrect(), nil
		}
	}
	return correct(), nil
}

func evaluateAt(src string, points []map[string]complex128, caseSensitive bool) ([]complex128, error) {
	tree, err := calc.Parse(src, caseSensitive)
	if err != nil {
		return nil, &InputError{Message: err.Error(), Err: err}
	}
	out := make([]complex128, len(points))
	for i, vars := range points {
		v, err := calc.New(calc.Config{Variables: vars, CaseSensitive: caseSensitive}).EvaluateTree(tree)
		if err != nil {
			var undef *calc.UndefinedSymbol
			if errors.As(err, &undef) {
				return nil, &InputError{Message: err.Error(), Err: err}
			}
			return nil, &InputError{
				Message: fmt.Sprintf("Invalid input: Could not parse '%s' as a formula.", html.EscapeString(src)),
				Err:     err,
			}
		}
		out[i] = v
	}
	return out, nil
}

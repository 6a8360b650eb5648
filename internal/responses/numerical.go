package responses

import (
	"errors"
	"fmt"
	"html"
	"math"
	"math/cmplx"
	"strconv"
	"strings"

	"github.com/pavelanni/capagrader/internal/calc"
)

// Partial credit styles for numerical responses.
const (
	CreditClose = "close"
	CreditList  = "list"
)

const (
	defaultPartialRange = 2
	partialScore        = 0.5
)

// NumericalOptions configures GradeNumerical.
type NumericalOptions struct {
	Tolerance string
	// Alternatives are additional answers accepted only on exact equality.
	Alternatives []string
	// PartialCredit lists the enabled styles, CreditClose and CreditList.
	PartialCredit []string
	// PartialRange multiplies the tolerance, or the range width, for
	// CreditClose. Zero means 2.
	PartialRange float64
	// PartialAnswers are worth partial credit under CreditList.
	PartialAnswers []string
}

func (o NumericalOptions) credit(style string) bool {
	for _, s := range o.PartialCredit {
		if strings.EqualFold(strings.TrimSpace(s), style) {
			return true
		}
	}
	return false
}

// GradeNumerical grades student against expected, which is either a single
// expression or a range written [a, b] or (a, b) with inclusive or exclusive
// bounds.
func GradeNumerical(expected, student string, opts NumericalOptions) (Result, error) {
	for _, s := range opts.PartialCredit {
		if s = strings.TrimSpace(s); s != CreditClose && s != CreditList {
			return Result{}, staffError(nil, "partial_credit must be one of %s,%s, got %q", CreditList, CreditClose, s)
		}
	}
	if opts.PartialRange == 0 {
		opts.PartialRange = defaultPartialRange
	}

	value, err := studentNumber(student)
	if err != nil {
		return Result{}, err
	}

	var res Result
	expected = strings.TrimSpace(expected)
	if isRange(expected) {
		res, err = gradeRange(expected, value, opts)
	} else {
		res, err = gradePoint(expected, value, opts)
	}
	if err != nil || res.Correctness != Incorrect {
		return res, err
	}

	for _, alt := range opts.Alternatives {
		staff, err := staffNumber(alt)
		if err != nil {
			return Result{}, err
		}
		if value == staff {
			return correct(), nil
		}
	}
	return res, nil
}

func gradePoint(expected string, value complex128, opts NumericalOptions) (Result, error) {
	staff, err := staffNumber(expected)
	if err != nil {
		return Result{}, err
	}
	tolerance := opts.Tolerance
	if tolerance == "" {
		tolerance = DefaultTolerance
	}
	within := func(target complex128, tol string) (bool, error) {
		ok, err := CompareWithTolerance(value, target, tol, false)
		if err != nil {
			return false, staffError(err, "invalid tolerance %q", tol)
		}
		return ok, nil
	}

	if ok, err := within(staff, tolerance); err != nil || ok {
		return verdict(ok), err
	}
	if len(opts.PartialCredit) == 0 {
		return incorrect(), nil
	}

	expanded, err := expandTolerance(tolerance, opts.PartialRange)
	if err != nil {
		return Result{}, err
	}

	if opts.credit(CreditList) {
		for _, pa := range opts.PartialAnswers {
			alt, err := staffNumber(pa)
			if err != nil {
				return Result{}, err
			}
			if ok, err := within(alt, tolerance); err != nil || ok {
				return partial(partialScore), err
			}
			if !opts.credit(CreditClose) {
				continue
			}
			if ok, err := within(staff, expanded); err != nil || ok {
				return partial(partialScore), err
			}
			if ok, err := within(alt, expanded); err != nil || ok {
				return partial(partialScore * partialScore), err
			}
		}
		return incorrect(), nil
	}

	if opts.credit(CreditClose) {
		if ok, err := within(staff, expanded); err != nil || ok {
			return partial(partialScore), err
		}
	}
	return incorrect(), nil
}

func expandTolerance(tolerance string, factor float64) (string, error) {
	src, percent := strings.CutSuffix(strings.TrimSpace(tolerance), "%")
	v, err := calc.Evaluate(src, nil, nil, false)
	if err != nil || imag(v) != 0 {
		return "", staffError(err, "invalid tolerance %q", tolerance)
	}
	out := strconv.FormatFloat(real(v)*factor, 'g', -1, 64)
	if percent {
		out += "%"
	}
	return out, nil
}

// isRange reports whether s is written as an interval. A parenthesized
// expression without a comma such as (1+2) is a single value.
func isRange(s string) bool {
	return len(s) >= 2 && strings.ContainsAny(s[:1], "[(") && strings.ContainsAny(s[len(s)-1:], "])") &&
		strings.Count(s, ",") == 1
}

func gradeRange(expected string, value complex128, opts NumericalOptions) (Result, error) {
	if imag(value) != 0 {
		return Result{}, &InputError{Message: "You may not use complex numbers in range tolerance problems"}
	}
	inclusion := [2]bool{expected[0] == '[', expected[len(expected)-1] == ']'}
	parts := strings.Split(expected[1:len(expected)-1], ",")

	var bounds [2]float64
	for i, p := range parts {
		b, err := staffNumber(p)
		if err != nil {
			return Result{}, err
		}
		if imag(b) != 0 {
			return Result{}, staffError(nil, "complex boundary")
		}
		if math.IsNaN(real(b)) {
			return Result{}, staffError(nil, "empty boundary")
		}
		bounds[i] = real(b)
		// A value on a boundary is decided by that boundary's inclusion.
		if withinTolerance(value, b, epsilon*max(cmplx.Abs(value), math.Abs(real(b)))) {
			return verdict(inclusion[i]), nil
		}
	}

	x := real(value)
	if bounds[0] < x && x < bounds[1] {
		return correct(), nil
	}
	if opts.credit(CreditClose) {
		width := bounds[1] - bounds[0]
		lo, hi := bounds[0]-opts.PartialRange*width, bounds[1]+opts.PartialRange*width
		if lo < x && x < hi {
			return partial(partialScore), nil
		}
	}
	return incorrect(), nil
}

// epsilon is the machine epsilon for float64.
const epsilon = 2.220446049250313e-16

// studentNumber evaluates a learner's answer with no variables. A blank
// answer evaluates to NaN, which never matches.
func studentNumber(s string) (complex128, error) {
	v, err := calc.Evaluate(s, nil, nil, false)
	if err == nil {
		return v, nil
	}
	var undef *calc.UndefinedSymbol
	var perr *calc.ParseError
	if errors.As(err, &undef) || errors.As(err, &perr) {
		return 0, &InputError{Message: err.Error(), Err: err}
	}
	return 0, &InputError{Message: fmt.Sprintf("Could not interpret '%s' as a number.", html.EscapeString(s)), Err: err}
}

// staffNumber accepts a Go complex literal (with j or i as the imaginary
// unit) or any expression the evaluator understands.
func staffNumber(s string) (complex128, error) {
	s = strings.TrimSpace(s)
	if c, err := strconv.ParseComplex(strings.ReplaceAll(s, "j", "i"), 128); err == nil {
		return c, nil
	}
	v, err := calc.Evaluate(s, nil, nil, false)
	if err != nil {
		return 0, staffError(err, "%q is not a valid number", s)
	}
	return v, nil
}

package responses

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/pavelanni/capagrader/internal/calc"
)

// DefaultTolerance is used when a response sets none. It is relative to
// the larger of the two compared magnitudes.
const DefaultTolerance = "0.001%"

// CompareWithTolerance reports whether student is within tolerance of
// instructor. The tolerance is an expression, optionally ending in "%" to
// make it a fraction of |instructor|. With relative set, or with the default
// tolerance, the resulting tolerance is scaled by max(|student|, |instructor|).
// Infinite values match only by equality and NaN never matches.
func CompareWithTolerance(student, instructor complex128, tolerance string, relative bool) (bool, error) {
	tol, err := toleranceValue(tolerance, instructor, &relative)
	if err != nil {
		return false, err
	}
	if relative {
		tol *= max(cmplx.Abs(student), cmplx.Abs(instructor))
	}
	return withinTolerance(student, instructor, tol), nil
}

func toleranceValue(tolerance string, instructor complex128, relative *bool) (float64, error) {
	tolerance = strings.TrimSpace(tolerance)
	if tolerance == "" {
		tolerance = DefaultTolerance
	}
	if tolerance == DefaultTolerance {
		*relative = true
	}
	src, percent := strings.CutSuffix(tolerance, "%")
	v, err := calc.Evaluate(src, nil, nil, false)
	if err != nil {
		return 0, fmt.Errorf("invalid tolerance %q: %w", tolerance, err)
	}
	if imag(v) != 0 || math.IsNaN(real(v)) {
		return 0, fmt.Errorf("invalid tolerance %q", tolerance)
	}
	tol := math.Abs(real(v))
	if percent {
		tol *= 0.01
		if !*relative {
			tol *= cmplx.Abs(instructor)
		}
	}
	return tol, nil
}

func withinTolerance(student, instructor complex128, tol float64) bool {
	if cmplx.IsNaN(student) || cmplx.IsNaN(instructor) {
		return false
	}
	if cmplx.IsInf(student) || cmplx.IsInf(instructor) {
		return student == instructor
	}
	return cmplx.Abs(student-instructor) <= tol
}

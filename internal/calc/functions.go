package calc

import (
	"math"
	"math/cmplx"
)

// Func is a single-argument function callable from an expression.
type Func func(complex128) complex128

// RealFunc adapts a real function. Arguments with a non-zero imaginary part
// produce NaN.
func RealFunc(f func(float64) float64) Func {
	return func(z complex128) complex128 {
		if imag(z) != 0 {
			return complex(math.NaN(), 0)
		}
		return complex(f(real(z)), 0)
	}
}

// lift uses the real implementation while the argument is real and inside
// domain, and the complex one otherwise, so sqrt(-1) is i rather than NaN.
func lift(r func(float64) float64, c func(complex128) complex128, domain func(float64) bool) Func {
	return func(z complex128) complex128 {
		if imag(z) == 0 && (domain == nil || domain(real(z))) {
			return complex(r(real(z)), 0)
		}
		return c(z)
	}
}

func nonNegative(x float64) bool { return x >= 0 }
func unitInterval(x float64) bool { return x >= -1 && x <= 1 }
func atLeastOne(x float64) bool { return x >= 1 }

func reciprocal(f Func) Func {
	return func(z complex128) complex128 { return div(1, f(z)) }
}

func ofReciprocal(f Func) Func {
	return func(z complex128) complex128 { return f(div(1, z)) }
}

var (
	fnSin     = lift(math.Sin, cmplx.Sin, nil)
	fnCos     = lift(math.Cos, cmplx.Cos, nil)
	fnTan     = lift(math.Tan, cmplx.Tan, nil)
	fnArcsin  = lift(math.Asin, cmplx.Asin, unitInterval)
	fnArccos  = lift(math.Acos, cmplx.Acos, unitInterval)
	fnArctan  = lift(math.Atan, cmplx.Atan, nil)
	fnSinh    = lift(math.Sinh, cmplx.Sinh, nil)
	fnCosh    = lift(math.Cosh, cmplx.Cosh, nil)
	fnTanh    = lift(math.Tanh, cmplx.Tanh, nil)
	fnArcsinh = lift(math.Asinh, cmplx.Asinh, nil)
	fnArccosh = lift(math.Acosh, cmplx.Acosh, atLeastOne)
	fnArctanh = lift(math.Atanh, cmplx.Atanh, unitInterval)
)

func arccot(z complex128) complex128 {
	if real(z) < 0 {
		return sub(-math.Pi/2, fnArctan(z))
	}
	return sub(math.Pi/2, fnArctan(z))
}

func log2(z complex128) complex128 {
	return cmplx.Log(z) / math.Ln2
}

// factorial is defined for non-negative integers only.
func factorial(z complex128) complex128 {
	x := real(z)
	if imag(z) != 0 || x < 0 || x != math.Trunc(x) {
		return complex(math.NaN(), 0)
	}
	return complex(math.Round(math.Gamma(x+1)), 0)
}

// DefaultFunctions returns a fresh copy of the built-in function table.
func DefaultFunctions() map[string]Func {
	return map[string]Func{
		"sin": fnSin,
		"cos": fnCos,
		"tan": fnTan,
		"sec": reciprocal(fnCos),
		"csc": reciprocal(fnSin),
		"cot": reciprocal(fnTan),

		"arcsin": fnArcsin,
		"arccos": fnArccos,
		"arctan": fnArctan,
		"arcsec": ofReciprocal(fnArccos),
		"arccsc": ofReciprocal(fnArcsin),
		"arccot": arccot,

		"sinh": fnSinh,
		"cosh": fnCosh,
		"tanh": fnTanh,
		"sech": reciprocal(fnCosh),
		"csch": reciprocal(fnSinh),
		"coth": reciprocal(fnTanh),

		"arcsinh": fnArcsinh,
		"arccosh": fnArccosh,
		"arctanh": fnArctanh,
		"arcsech": ofReciprocal(fnArccosh),
		"arccsch": ofReciprocal(fnArcsinh),
		"arccoth": ofReciprocal(fnArctanh),

		"sqrt":      lift(math.Sqrt, cmplx.Sqrt, nonNegative),
		"log10":     lift(math.Log10, cmplx.Log10, nonNegative),
		"log2":      lift(math.Log2, log2, nonNegative),
		"ln":        lift(math.Log, cmplx.Log, nonNegative),
		"exp":       lift(math.Exp, cmplx.Exp, nil),
		"abs":       func(z complex128) complex128 { return complex(cmplx.Abs(z), 0) },
		"fact":      factorial,
		"factorial": factorial,
	}
}

// DefaultVariables returns a fresh copy of the built-in constants.
func DefaultVariables() map[string]complex128 {
	return map[string]complex128{
		"i":  1i,
		"j":  1i,
		"e":  math.E,
		"pi": math.Pi,
		"k":  1.380649e-23,    // Boltzmann constant, J/K
		"c":  2.99792458e8,    // speed of light, m/s
		"T":  298.15,          // room temperature, K
		"q":  1.602176634e-19, // elementary charge, C
	}
}

// Package responses grades learner answers to the response fields of a
// converted problem.
package responses

import (
	"errors"
	"fmt"
)

// Correctness is the verdict on one answer.
type Correctness string

const (
	Correct          Correctness = "correct"
	Incorrect        Correctness = "incorrect"
	PartiallyCorrect Correctness = "partially-correct"
)

// Result is the outcome of grading one answer. Fraction is the share of the
// response's points earned.
type Result struct {
	Correctness Correctness `json:"correctness"`
	Fraction    float64     `json:"fraction"`
	Msg         string      `json:"msg,omitempty"`
}

func correct() Result   { return Result{Correctness: Correct, Fraction: 1} }
func incorrect() Result { return Result{Correctness: Incorrect} }

func partial(fraction float64) Result {
	return Result{Correctness: PartiallyCorrect, Fraction: fraction}
}

func verdict(ok bool) Result {
	if ok {
		return correct()
	}
	return incorrect()
}

// InputError is a problem with the learner's answer that the learner can fix.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return e.Err }

// StaffAnswerError reports an answer or parameter authored into the problem
// that cannot be used.
type StaffAnswerError struct {
	Detail string
	Err    error
}

func (e *StaffAnswerError) Error() string {
	return "There was a problem with the staff answer to this problem: " + e.Detail
}

func (e *StaffAnswerError) Unwrap() error { return e.Err }

func staffError(err error, format string, args ...any) error {
	return &StaffAnswerError{Detail: fmt.Sprintf(format, args...), Err: err}
}

// ErrExternal is returned for responses that only an external grader can score.
var ErrExternal = errors.New("response must be graded by an external grader")

// ErrUnsupported is returned for response kinds that cannot be graded here.
var ErrUnsupported = errors.New("unsupported response type")

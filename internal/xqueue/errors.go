package xqueue

import (
	"errors"
	"fmt"
)

// JSONParsingError reports a header, body or reply that is not valid JSON.
type JSONParsingError struct {
	Name   string
	Detail string
}

func (e *JSONParsingError) Error() string {
	return fmt.Sprintf("Error parsing %s: %s", e.Name, e.Detail)
}

// MissingKeyError reports a required envelope key that is absent.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return "Missing key: " + e.Key
}

// ValidationError reports a present but unacceptable envelope value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "Validation error: " + e.Reason
}

// TypeErrorSubmission reports an envelope value of the wrong JSON type.
type TypeErrorSubmission struct {
	Detail string
}

func (e *TypeErrorSubmission) Error() string {
	return "Type error: " + e.Detail
}

// RuntimeErrorSubmission wraps a failure of the queue façade.
type RuntimeErrorSubmission struct {
	Detail string
	Err    error
}

func (e *RuntimeErrorSubmission) Error() string {
	return "Runtime error: " + e.Detail
}

func (e *RuntimeErrorSubmission) Unwrap() error { return e.Err }

// GetSubmissionParamsError is returned when no problem block is bound.
type GetSubmissionParamsError struct{}

func (GetSubmissionParamsError) Error() string {
	return "Block instance is not defined!"
}

// IsValidation reports whether err is one of the envelope errors that are
// returned to the caller as an error report rather than raised.
func IsValidation(err error) bool {
	var (
		jp *JSONParsingError
		mk *MissingKeyError
		ve *ValidationError
		te *TypeErrorSubmission
		gp GetSubmissionParamsError
	)
	return errors.As(err, &jp) || errors.As(err, &mk) || errors.As(err, &ve) ||
		errors.As(err, &te) || errors.As(err, &gp)
}

// ErrorReport renders err as the {"error": message} map handed back to callers.
func ErrorReport(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

package olx

import "fmt"

// InvalidNesting reports an element opened where it is not allowed, or a
// region left open at the end of input.
type InvalidNesting struct {
	Tag   string
	Depth int
	Err   error // underlying decoder error, if any
}

func (e *InvalidNesting) Error() string {
	return fmt.Sprintf("invalid nesting of <%s> at depth %d", e.Tag, e.Depth)
}

func (e *InvalidNesting) Unwrap() error { return e.Err }

// TagNotConsumed reports an element that only has meaning inside a parent
// that was not there to take it, such as <answer> outside a custom response.
type TagNotConsumed struct {
	Tag   string
	Depth int
}

func (e *TagNotConsumed) Error() string {
	return fmt.Sprintf("tag <%s> was not consumed by the converter", e.Tag)
}

// MissingContent reports a required attribute or child element that was
// never supplied.
type MissingContent struct {
	Tag  string
	What string
}

func (e *MissingContent) Error() string {
	return fmt.Sprintf("<%s> requires %s", e.Tag, e.What)
}

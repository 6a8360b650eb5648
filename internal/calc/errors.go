package calc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/capagrader/internal/textutil"
)

// ParseError reports input the grammar could not consume.
type ParseError struct {
	Source   string
	Position int    // byte offset of the offending input
	Expected string // what the parser was looking for
	Found    string // the offending text, empty at end of input
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Invalid Input: Could not parse '%s' at position %d, expected %s",
		e.Source, e.Position, e.Expected)
}

// UndefinedSymbol lists identifiers that are neither default nor supplied
// variables or functions.
type UndefinedSymbol struct {
	Names []string // as written, sorted
}

func newUndefinedSymbol(names []string) *UndefinedSymbol {
	names = textutil.Dedupe(names)
	sort.Strings(names)
	return &UndefinedSymbol{Names: names}
}

func (e *UndefinedSymbol) Error() string {
	return fmt.Sprintf("Invalid Input: %s not permitted in answer as a variable", strings.Join(e.Names, ", "))
}

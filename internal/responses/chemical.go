package responses

import (
	"github.com/pavelanni/capagrader/internal/chem"
	"github.com/pavelanni/capagrader/internal/draganddrop"
)

// ChemicalOptions configures GradeChemical.
type ChemicalOptions struct {
	// IgnoreState drops phase tags when comparing expressions.
	IgnoreState bool
	// Exact requires equations to match without scaling.
	Exact bool
}

// GradeChemical compares equations when expected contains an arrow and
// expressions otherwise. Unparseable input is incorrect.
func GradeChemical(expected, student string, opts ChemicalOptions) Result {
	if _, arrow, _ := chem.SplitOnArrow(expected); arrow != "" {
		return verdict(chem.CompareEquations(student, expected, opts.Exact))
	}
	return verdict(chem.CompareExpression(student, expected, opts.IgnoreState))
}

// GradeDragAndDrop compares JSON placements with a JSON answer.
func GradeDragAndDrop(expected, student string) Result {
	return verdict(draganddrop.GradeJSON(student, expected))
}

package responses

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pavelanni/capagrader/internal/olx"
)

// Custom response check functions handled in process.
const (
	CheckChemical    = "check_chemical"
	CheckDragAndDrop = "check_draganddrop"
)

// Config configures a Grader.
type Config struct {
	// Seed makes formula sampling reproducible. Zero seeds randomly.
	Seed uint64
}

// Grader grades the response fields of converted problems. It is safe for
// concurrent use.
type Grader struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Grader.
func New(cfg Config) *Grader {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Grader{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Grade grades the student answer to node n of problem p.
func (g *Grader) Grade(p *olx.Problem, n *olx.Node, student string) (Result, error) {
	ex := n.Extras
	switch n.Type {
	case olx.ItemNumerical:
		opts := NumericalOptions{
			Tolerance:      ex["tolerance"],
			Alternatives:   n.Answer.Alternatives,
			PartialCredit:  splitList(ex["partial_credit"]),
			PartialAnswers: splitList(ex["partial_answers"]),
		}
		if r := ex["partial_range"]; r != "" {
			v, err := strconv.ParseFloat(r, 64)
			if err != nil {
				return Result{}, staffError(err, "invalid partial_range %q", r)
			}
			opts.PartialRange = v
		}
		return GradeNumerical(n.Answer.Value, student, opts)

	case olx.ItemString:
		opts := ParseStringType(ex["type"])
		opts.Alternatives = n.Answer.Alternatives
		return GradeString(n.Answer.Value, student, opts)

	case olx.ItemFormula, olx.ItemSymbolic:
		if ex["samples"] == "" {
			if n.Type == olx.ItemSymbolic {
				return Result{}, fmt.Errorf("%w: symbolic response without samples", ErrUnsupported)
			}
			return Result{}, staffError(nil, "formula response without samples")
		}
		return g.gradeFormula(n, student)

	case olx.ItemCustom, olx.ItemSchematic:
		switch ex["cfn"] {
		case CheckChemical:
			return GradeChemical(n.Answer.Value, student, ChemicalOptions{
				IgnoreState: isTrue(ex["ignore_state"]),
				Exact:       isTrue(ex["exact"]),
			}), nil
		case CheckDragAndDrop:
			return GradeDragAndDrop(n.Answer.Value, student), nil
		}
		return Result{}, fmt.Errorf("%w: check function %q", ErrExternal, ex["cfn"])

	case olx.ItemMultipleChoice, olx.ItemTrueFalse:
		return gradeChoices(p, n, student)
	}
	return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, n.Type)
}

func (g *Grader) gradeFormula(n *olx.Node, student string) (Result, error) {
	g.mu.Lock()
	seed := g.rng.Uint64()
	g.mu.Unlock()

	expected := n.Answer.Value
	answers := append([]string{expected}, n.Answer.Alternatives...)
	var last Result
	for _, a := range answers {
		res, err := GradeFormula(a, student, FormulaOptions{
			Samples:       n.Extras["samples"],
			Tolerance:     n.Extras["tolerance"],
			CaseSensitive: n.Extras["type"] != "ci",
			Rand:          rand.New(rand.NewPCG(seed, seed)),
		})
		if err != nil || res.Correctness == Correct {
			return res, err
		}
		last = res
	}
	return last, nil
}

// gradeChoices compares the comma separated indices in student with the set
// of correct choices in group n.
func gradeChoices(p *olx.Problem, n *olx.Node, student string) (Result, error) {
	var want []int
	for i, id := range n.Children {
		if p.Node(id).Correct {
			want = append(want, i)
		}
	}
	var got []int
	for _, f := range splitList(student) {
		i, err := strconv.Atoi(f)
		if err != nil || i < 0 || i >= len(n.Children) {
			return Result{}, &InputError{Message: fmt.Sprintf("Invalid choice %q.", f), Err: err}
		}
		if !slices.Contains(got, i) {
			got = append(got, i)
		}
	}
	slices.Sort(got)
	return verdict(slices.Equal(got, want)), nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isTrue(s string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(s))
	return v
}

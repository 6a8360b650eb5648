// Package draganddrop grades drag-and-drop answers: where the learner put
// each draggable is compared with per-group target lists under a rule.
package draganddrop

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/capagrader/internal/textutil"
)

// Rules understood by Grade. Any rule may carry a "+number" suffix, which
// keeps repeated placements of reusable draggables.
const (
	RuleExact          = "exact"
	RuleAnyOf          = "anyof"
	RuleUnorderedEqual = "unordered_equal"
)

// Group ties a set of draggables to the positions they must occupy.
type Group struct {
	Draggables []string   `json:"draggables"`
	Targets    []Position `json:"targets"`
	Rule       string     `json:"rule"`
}

// Answer is the instructor's answer: a list of groups.
type Answer []Group

// Placement is one draggable dropped at one position.
type Placement struct {
	Draggable string
	Position  Position
}

// ParseAnswer decodes an answer given either as a list of groups or in the
// legacy {"draggable": target} form, which becomes one exact group per key.
func ParseAnswer(data []byte) (Answer, error) {
	var groups Answer
	if err := json.Unmarshal(data, &groups); err == nil {
		return groups, nil
	}
	var legacy map[string]Position
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("decode drag and drop answer: %w", err)
	}
	keys := make([]string, 0, len(legacy))
	for k := range legacy {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		groups = append(groups, Group{Draggables: []string{k}, Targets: []Position{legacy[k]}, Rule: RuleExact})
	}
	return groups, nil
}

// ParsePlacements decodes a learner answer: a list of single-key objects
// {"draggable": position}, optionally wrapped as {"draggables": [...]}.
// Nested objects such as {"up": {"first": {"p": "p_l"}}} name a target
// inside a target and flatten to "p_l[p][first]".
func ParsePlacements(data []byte) ([]Placement, error) {
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapped struct {
			Draggables []map[string]any `json:"draggables"`
		}
		if werr := json.Unmarshal(data, &wrapped); werr != nil || wrapped.Draggables == nil {
			return nil, fmt.Errorf("decode drag and drop placements: %w", err)
		}
		items = wrapped.Draggables
	}
	out := make([]Placement, 0, len(items))
	for _, item := range items {
		if len(item) != 1 {
			return nil, fmt.Errorf("decode drag and drop placements: want one draggable per entry, got %d", len(item))
		}
		for name, v := range item {
			out = append(out, Placement{Draggable: name, Position: positionFrom(flatten(v))})
		}
	}
	return out, nil
}

func flatten(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	var path []string
	for ok && len(m) == 1 {
		for k, inner := range m {
			path = append(path, k)
			v = inner
		}
		m, ok = v.(map[string]any)
	}
	if ok {
		return nil
	}
	s := fmt.Sprint(v)
	for i := len(path) - 1; i >= 0; i-- {
		s += "[" + path[i] + "]"
	}
	return s
}

// GradeJSON decodes both sides and grades. Undecodable input is wrong.
func GradeJSON(userAnswer, answer string) bool {
	placements, err := ParsePlacements([]byte(userAnswer))
	if err != nil {
		return false
	}
	ans, err := ParseAnswer([]byte(answer))
	if err != nil {
		return false
	}
	return Grade(placements, ans)
}

// Grade reports whether the placements satisfy every group of the answer.
func Grade(placements []Placement, answer Answer) bool {
	perGroup := make([][]Placement, len(answer))
	covered := make(map[string]bool, len(placements))
	for gi, g := range answer {
		members := make(map[string]bool, len(g.Draggables))
		for _, d := range g.Draggables {
			members[d] = true
		}
		for _, p := range placements {
			if members[p.Draggable] {
				perGroup[gi] = append(perGroup[gi], p)
				covered[p.Draggable] = true
			}
		}
	}
	for _, p := range placements {
		if !covered[p.Draggable] {
			return false
		}
	}

	rules := make([]string, len(answer))
	for gi, g := range answer {
		ids := make([]string, len(perGroup[gi]))
		for i, p := range perGroup[gi] {
			ids[i] = p.Draggable
		}
		rule := g.Rule
		if strings.Contains(rule, "number") {
			rule = strings.ReplaceAll(strings.ReplaceAll(rule, "+", ""), "number", "")
		} else {
			ids = textutil.Dedupe(ids)
		}
		if !textutil.MultisetEqual(g.Draggables, ids) {
			return false
		}
		rules[gi] = rule
	}

	for gi, g := range answer {
		user := make([]Position, len(perGroup[gi]))
		for i, p := range perGroup[gi] {
			user[i] = p.Position
		}
		if len(g.Targets) == 0 || !comparePositions(g.Targets, user, rules[gi]) {
			return false
		}
	}
	return true
}

func comparePositions(correct, user []Position, rule string) bool {
	eq := func(a, b Position) bool { return a.Equal(b) }
	switch rule {
	case RuleExact:
		if len(correct) != len(user) {
			return false
		}
		for i := range correct {
			if !correct[i].Equal(user[i]) {
				return false
			}
		}
		return true
	case RuleAnyOf:
		for _, u := range user {
			found := false
			for _, c := range correct {
				if c.Equal(u) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case RuleUnorderedEqual:
		return textutil.MultisetEqualFunc(correct, user, eq)
	}
	return false
}

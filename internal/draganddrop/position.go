package draganddrop

import (
	"encoding/json"
	"math"
	"strings"
)

// DefaultRadius is the forgiveness radius, in pixels, for coordinate targets.
const DefaultRadius = 10

type posKind int

const (
	posInvalid posKind = iota
	posTarget
	posPoint
)

// Position is where a draggable was dropped or should be dropped: either a
// named target or a point with an optional radius of forgiveness.
type Position struct {
	kind   posKind
	target string
	x, y   float64
	radius float64
}

// Target returns a named-target position.
func Target(id string) Position {
	if id == "" {
		return Position{}
	}
	return Position{kind: posTarget, target: id}
}

// Point returns a coordinate position. A radius of zero means the default.
func Point(x, y, radius float64) Position {
	return Position{kind: posPoint, x: x, y: y, radius: radius}
}

// Valid reports whether the position was understood.
func (p Position) Valid() bool { return p.kind != posInvalid }

// Equal compares two positions. Targets compare by name. Points match when
// they lie within the larger of both radii and DefaultRadius of each other.
// A target never equals a point.
func (p Position) Equal(o Position) bool {
	switch {
	case p.kind == posTarget && o.kind == posTarget:
		return p.target == o.target
	case p.kind == posPoint && o.kind == posPoint:
		r := math.Max(DefaultRadius, math.Max(p.radius, o.radius))
		dx, dy := o.x-p.x, o.y-p.y
		return dx*dx+dy*dy <= r*r
	}
	return false
}

// UnmarshalJSON accepts "t1", ["t", "1"], [x, y] and [[x, y], r]. Anything
// else decodes to an invalid position that equals nothing.
func (p *Position) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = positionFrom(v)
	return nil
}

func positionFrom(v any) Position {
	switch val := v.(type) {
	case string:
		return Target(val)
	case []any:
		if len(val) == 0 {
			return Position{}
		}
		if s, ok := joinStrings(val); ok {
			return Target(s)
		}
		if len(val) != 2 {
			return Position{}
		}
		if x, y, ok := pair(val); ok {
			return Point(x, y, 0)
		}
		xy, ok := val[0].([]any)
		r, rok := val[1].(float64)
		if !ok || !rok || len(xy) != 2 {
			return Position{}
		}
		if x, y, ok := pair(xy); ok {
			return Point(x, y, r)
		}
	}
	return Position{}
}

// joinStrings concatenates a list made only of strings.
func joinStrings(vals []any) (string, bool) {
	var sb strings.Builder
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			return "", false
		}
		sb.WriteString(s)
	}
	return sb.String(), true
}

func pair(vals []any) (float64, float64, bool) {
	x, xok := vals[0].(float64)
	y, yok := vals[1].(float64)
	return x, y, xok && yok
}

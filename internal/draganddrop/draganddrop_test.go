package draganddrop

import (
	"encoding/json"
	"testing"
)

func pos(t *testing.T, raw string) Position {
	t.Helper()
	var p Position
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return p
}

func TestPositionEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{`"1"`, `["1"]`, true},
		{`"t1"`, `["t", "1"]`, true},
		{`"t1"`, `"t2"`, false},
		{`[[1, 2], 40]`, `[1, 3]`, true},
		{`[[1, 2], 12]`, `[1, 15]`, false},
		{`[1, 11]`, `[1, 1]`, true},
		{`[1, 12]`, `[1, 1]`, false},
		{`[3.5, 4.5]`, `[5, 7]`, true},
		{`[1, 2]`, `"1"`, false},
		{`[]`, `[]`, false},
		{`[1, 2, 3]`, `[1, 2, 3]`, false},
	}
	for _, tt := range tests {
		a, b := pos(t, tt.a), pos(t, tt.b)
		if got := a.Equal(b); got != tt.want {
			t.Errorf("%s == %s: got %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := b.Equal(a); got != tt.want {
			t.Errorf("%s == %s: got %v, want %v", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestGradeJSON(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		answer string
		want   bool
	}{
		{
			name:   "anyof swapped targets",
			user:   `[{"1": "t2"}, {"2": "t1"}]`,
			answer: `[{"draggables": ["1", "2"], "targets": ["t1", "t2"], "rule": "anyof"}]`,
			want:   true,
		},
		{
			name:   "exact in order",
			user:   `[{"1": "t1"}, {"2": "t2"}]`,
			answer: `[{"draggables": ["1", "2"], "targets": ["t1", "t2"], "rule": "exact"}]`,
			want:   true,
		},
		{
			name:   "exact permuted",
			user:   `[{"2": "t2"}, {"1": "t1"}]`,
			answer: `[{"draggables": ["1", "2"], "targets": ["t1", "t2"], "rule": "exact"}]`,
			want:   false,
		},
		{
			name:   "unordered_equal permuted",
			user:   `[{"2": "t2"}, {"1": "t1"}]`,
			answer: `[{"draggables": ["1", "2"], "targets": ["t1", "t2"], "rule": "unordered_equal"}]`,
			want:   true,
		},
		{
			name:   "unordered_equal consumes matches",
			user:   `[{"1": "t1"}, {"2": "t1"}]`,
			answer: `[{"draggables": ["1", "2"], "targets": ["t1", "t2"], "rule": "unordered_equal"}]`,
			want:   false,
		},
		{
			name:   "anyof with wrong target",
			user:   `[{"1": "t3"}, {"2": "t1"}]`,
			answer: `[{"draggables": ["1", "2"], "targets": ["t1", "t2"], "rule": "anyof"}]`,
			want:   false,
		},
		{
			name:   "legacy dict",
			user:   `[{"1": "t1"}, {"name_with_icon": "t2"}]`,
			answer: `{"1": "t1", "name_with_icon": "t2"}`,
			want:   true,
		},
		{
			name:   "legacy dict wrong",
			user:   `[{"1": "t2"}, {"name_with_icon": "t1"}]`,
			answer: `{"1": "t1", "name_with_icon": "t2"}`,
			want:   false,
		},
		{
			name:   "excess draggable",
			user:   `[{"1": "t1"}, {"3": "t2"}]`,
			answer: `[{"draggables": ["1"], "targets": ["t1"], "rule": "exact"}]`,
			want:   false,
		},
		{
			name:   "missing draggable",
			user:   `[{"1": "t1"}]`,
			answer: `[{"draggables": ["1", "2"], "targets": ["t1", "t2"], "rule": "anyof"}]`,
			want:   false,
		},
		{
			name:   "coordinates within radius",
			user:   `[{"1": [10, 10]}, {"2": [100, 102]}]`,
			answer: `[{"draggables": ["1", "2"], "targets": [[[12, 12], 5], [100, 100]], "rule": "exact"}]`,
			want:   true,
		},
		{
			name:   "reused draggable deduplicated",
			user:   `[{"1": "t1"}, {"1": "t1"}]`,
			answer: `[{"draggables": ["1"], "targets": ["t1"], "rule": "anyof"}]`,
			want:   true,
		},
		{
			name:   "number rule keeps duplicates",
			user:   `[{"1": "t1"}, {"1": "t2"}, {"2": "t3"}]`,
			answer: `[{"draggables": ["1", "1", "2"], "targets": ["t1", "t2", "t3"], "rule": "unordered_equal+number"}]`,
			want:   true,
		},
		{
			name:   "number rule counts duplicates",
			user:   `[{"1": "t1"}, {"2": "t3"}]`,
			answer: `[{"draggables": ["1", "1", "2"], "targets": ["t1", "t2", "t3"], "rule": "unordered_equal+number"}]`,
			want:   false,
		},
		{
			name:   "unknown rule",
			user:   `[{"1": "t1"}]`,
			answer: `[{"draggables": ["1"], "targets": ["t1"], "rule": "anyof_number"}]`,
			want:   false,
		},
		{
			name:   "nested target",
			user:   `[{"up": {"first": {"p": "p_l"}}}]`,
			answer: `[{"draggables": ["up"], "targets": ["p_l[p][first]"], "rule": "exact"}]`,
			want:   true,
		},
		{
			name:   "two groups",
			user:   `[{"a": "t1"}, {"b": "t2"}, {"c": "t3"}]`,
			answer: `[{"draggables": ["a", "b"], "targets": ["t2", "t1"], "rule": "unordered_equal"}, {"draggables": ["c"], "targets": ["t3"], "rule": "exact"}]`,
			want:   true,
		},
		{
			name:   "wrapped placements",
			user:   `{"draggables": [{"1": "t1"}]}`,
			answer: `[{"draggables": ["1"], "targets": ["t1"], "rule": "exact"}]`,
			want:   true,
		},
		{
			name:   "both empty",
			user:   `[]`,
			answer: `[]`,
			want:   true,
		},
		{
			name:   "answer empty",
			user:   `[{"1": "t1"}]`,
			answer: `[]`,
			want:   false,
		},
		{
			name:   "bad json",
			user:   `[{"1": `,
			answer: `[]`,
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GradeJSON(tt.user, tt.answer); got != tt.want {
				t.Errorf("GradeJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

package textutil

import (
	"math"
	"math/big"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		src  string
		want float64
		ok   bool
	}{
		{"17", 17, true},
		{"3.", 3, true},
		{".5", 0.5, true},
		{"-2.5", -2.5, true},
		{"1e3", 1000, true},
		{"1E-3", 0.001, true},
		{"2k", 2000, true},
		{"5%", 0.05, true},
		{"1.5e2m", 0.15, true},
		{"3u", 3e-6, true},
		{".", 0, false},
		{"abc", 0, false},
		{"2x", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			n, ok := ParseNumber(tt.src)
			if ok != tt.ok {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.src, ok, tt.ok)
			}
			if !ok {
				return
			}
			if got := n.Float(); math.Abs(got-tt.want) > 1e-12*math.Max(1, math.Abs(tt.want)) {
				t.Errorf("ParseNumber(%q).Float() = %g, want %g", tt.src, got, tt.want)
			}
		})
	}
}

func TestScanNumberKeepsTrailingE(t *testing.T) {
	s := NewScanner("2e")
	n, ok := ScanNumber(s)
	if !ok {
		t.Fatal("expected a number")
	}
	if n.HasExponent() {
		t.Errorf("exponent = %q, want none", n.Exponent)
	}
	if s.Rest() != "e" {
		t.Errorf("rest = %q, want %q", s.Rest(), "e")
	}
}

func TestNumberString(t *testing.T) {
	n, _ := ParseNumber("-1.5e-3k")
	if got := n.String(); got != "-1.5E-3k" {
		t.Errorf("String() = %q", got)
	}
}

func TestIsIdentifier(t *testing.T) {
	for _, s := range []string{"x", "_a", "R_1", "alpha2"} {
		if !IsIdentifier(s) {
			t.Errorf("IsIdentifier(%q) = false", s)
		}
	}
	for _, s := range []string{"", "1x", "a-b", "é"} {
		if IsIdentifier(s) {
			t.Errorf("IsIdentifier(%q) = true", s)
		}
	}
}

func TestCasify(t *testing.T) {
	if got := Casify("ABc", false); got != "abc" {
		t.Errorf("Casify insensitive = %q", got)
	}
	if got := Casify("ABc", true); got != "ABc" {
		t.Errorf("Casify sensitive = %q", got)
	}
}

func TestMultisetEqual(t *testing.T) {
	if !MultisetEqual([]string{"a", "b", "a"}, []string{"a", "a", "b"}) {
		t.Error("expected equal multisets")
	}
	if MultisetEqual([]string{"a", "b", "b"}, []string{"a", "a", "b"}) {
		t.Error("expected different multisets")
	}
	near := func(x, y int) bool { return x-y <= 1 && y-x <= 1 }
	if !MultisetEqualFunc([]int{1, 10}, []int{11, 2}, near) {
		t.Error("expected tolerant match")
	}
	if MultisetEqualFunc([]int{1, 10}, []int{2, 2}, near) {
		t.Error("one answer element must not match twice")
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("Dedupe = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Dedupe = %v, want %v", got, want)
		}
	}
}

func TestParseRational(t *testing.T) {
	tests := []struct {
		src  string
		want *big.Rat
	}{
		{"3", big.NewRat(3, 1)},
		{"2/4", big.NewRat(1, 2)},
		{" 6 / 3 ", big.NewRat(2, 1)},
		{"1/0", nil},
		{"-1", nil},
		{"x", nil},
	}
	for _, tt := range tests {
		got, ok := ParseRational(tt.src)
		if tt.want == nil {
			if ok {
				t.Errorf("ParseRational(%q) = %v, want failure", tt.src, got)
			}
			continue
		}
		if !ok || got.Cmp(tt.want) != 0 {
			t.Errorf("ParseRational(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

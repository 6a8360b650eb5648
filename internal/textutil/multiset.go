package textutil

import (
	"math/big"
	"strings"
)

// MultisetEqual reports whether a and b hold the same elements with the same
// multiplicities, ignoring order.
func MultisetEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[T]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}

// MultisetEqualFunc is MultisetEqual for elements compared by eq. Each
// element of b consumes the first still-unmatched equal element of a.
func MultisetEqualFunc[T any](a, b []T, eq func(x, y T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(a))
	for _, y := range b {
		found := false
		for i, x := range a {
			if !used[i] && eq(x, y) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Dedupe returns xs with later repeats removed, keeping first-seen order.
func Dedupe[T comparable](xs []T) []T {
	seen := make(map[T]bool, len(xs))
	out := make([]T, 0, len(xs))
	for _, x := range xs {
		if seen[x] {
			continue
		}
		seen[x] = true
		out = append(out, x)
	}
	return out
}

// ParseRational parses "n" or "p/q" into a reduced exact ratio. Both parts
// must be non-negative integers and q must be non-zero.
func ParseRational(s string) (*big.Rat, bool) {
	num, den, hasDen := strings.Cut(strings.TrimSpace(s), "/")
	p, ok := new(big.Int).SetString(strings.TrimSpace(num), 10)
	if !ok || p.Sign() < 0 {
		return nil, false
	}
	q := big.NewInt(1)
	if hasDen {
		q, ok = new(big.Int).SetString(strings.TrimSpace(den), 10)
		if !ok || q.Sign() <= 0 {
			return nil, false
		}
	}
	return new(big.Rat).SetFrac(p, q), true
}

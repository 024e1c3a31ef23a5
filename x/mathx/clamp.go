// Package mathx holds small generic numeric helpers.
package mathx

import "golang.org/x/exp/constraints"

// Clamp returns v limited to the closed range between lo and hi, in either
// order. A NaN v yields the lower bound.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	switch {
	case v != v, v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// Between reports whether v lies in the closed range between lo and hi.
func Between[T constraints.Ordered](v, lo, hi T) bool {
	return Clamp(v, lo, hi) == v
}

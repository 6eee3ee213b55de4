// Package clamp holds the one generic range-clip helper shared by the
// planner's distance clamp and the smart driver's current-percentage
// clamp, covering every Ordered type
// instead of copy-pasting a per-type version in each package.
package clamp

import "golang.org/x/exp/constraints"

// Clip returns v bounded to [lo, hi].
func Clip[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package sortutil

import "github.com/cockroachdb/errors"

// ErrDuplicate is returned by CombSort when unique is requested and two
// equal elements are found.
var ErrDuplicate = errors.New("sortutil: duplicate element with unique sort requested")

// Interface is the callback surface CombSort and BinarySearch operate
// against. It deliberately mirrors sort.Interface so any existing
// sort.Interface implementation already satisfies it.
type Interface interface {
	Len() int
	Less(i, j int) bool
	Swap(i, j int)
}

// CombSort sorts data in place using the comb-sort algorithm with the
// classic 10/13 gap-shrink factor, skipping the gap values 9 and 10 in
// favor of 11 (the "comb sort 11" refinement, which empirically avoids
// the turtle-pairs that make plain comb sort degrade towards bubble
// sort). If unique is true and two elements compare equal during a pass,
// the sort stops and returns ErrDuplicate; data is left partially sorted
// in that case.
func CombSort(data Interface, unique bool) error {
	n := data.Len()
	if n < 2 {
		return nil
	}

	gap := n
	swapped := true
	for gap != 1 || swapped {
		gap = nextGap(gap)
		swapped = false

		for i := 0; i+gap < n; i++ {
			j := i + gap
			if data.Less(j, i) {
				data.Swap(i, j)
				swapped = true
			} else if unique && !data.Less(i, j) {
				// neither i<j nor j<i: the two elements compare equal.
				return ErrDuplicate
			}
		}
	}
	return nil
}

func nextGap(gap int) int {
	gap = gap * 10 / 13
	if gap == 9 || gap == 10 {
		return 11
	}
	if gap < 1 {
		return 1
	}
	return gap
}

// Mode selects the semantics of BinarySearch when the target is absent
// from (or duplicated within) the searched range.
type Mode int

const (
	// ModeExact requires an exact match; returns (0, false) if absent.
	ModeExact Mode = iota
	// ModeGreatestLowerEqual returns the largest index whose element is
	// < the target, or, when elements equal the target, the first of
	// them.
	ModeGreatestLowerEqual
	// ModeLeastUpperEqual returns the smallest index whose element is
	// >= the target.
	ModeLeastUpperEqual
)

// CompareFunc compares the element at index i against an implicit target,
// returning <0 if the element is less, 0 if equal, and >0 if greater. The
// sequence of indices [0, n) must be sorted ascending with respect to
// this comparison.
type CompareFunc func(i int) int

// BinarySearch locates target within a sorted sequence of length n using
// cmp to compare candidate indices. For ties (multiple elements equal to
// the target) every mode returns the first (lowest-index) occurrence, as
// required by the exact/GLE/LUE semantics above.
func BinarySearch(n int, cmp CompareFunc, mode Mode) (int, bool) {
	lo, hi := 0, n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(mid) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	// lo is now the first index with cmp(lo) >= 0, i.e. the leftmost
	// element that is >= target ("lower bound").

	switch mode {
	case ModeExact:
		if lo < n && cmp(lo) == 0 {
			return lo, true
		}
		return 0, false

	case ModeLeastUpperEqual:
		if lo < n {
			return lo, true
		}
		return 0, false

	case ModeGreatestLowerEqual:
		if lo < n && cmp(lo) == 0 {
			// an exact match exists; ties return the first occurrence.
			return lo, true
		}
		if lo-1 >= 0 {
			return lo - 1, true
		}
		return 0, false

	default:
		return 0, false
	}
}

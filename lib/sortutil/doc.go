// Package sortutil provides a generic combsort and a three-mode binary
// search over opaque, caller-indexed sequences. Callers describe the
// sequence with Less/Swap callbacks (mirroring sort.Interface) instead of
// handing over a concrete slice, so any sequence that can describe
// itself that way can be sorted or searched. No other package in this
// module imports sortutil.
package sortutil

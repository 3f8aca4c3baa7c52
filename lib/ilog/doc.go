// Package ilog implements the per-key incarnation log (spec §4.G): an
// append-only, strictly-increasing-by-(epoch, minor_epc) record of
// create/update/punch events used to resolve multi-version visibility
// without touching the value itself. A key's log answers "was this key
// visible, covered, or nonexistent at epoch E" without walking the
// extent or single-value tree beneath it.
package ilog

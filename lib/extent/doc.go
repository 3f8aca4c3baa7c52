// Package extent implements the versioned interval tree (spec §4.F):
// leaves hold [lo, hi) byte-range entries tagged with an (epoch,
// minor_epc) version, a checksum, and a heap.Offset locating the bytes.
// The node/split/merge shape is adapted from lib/btree's leaf-split
// mechanics, specialized for overlapping-interval records instead of
// single-point keys: insertion coalesces same-version overlaps, and
// queries classify each overlapping entry as visible, covered, partial
// or punched against a Filter.
package extent

// Package lru implements a fixed-capacity, handle-based LRU array: a
// logical array of N = 2^k entries partitioned into M = 2^j equally
// sized sub-arrays, addressed by a 32-bit index that packs the
// sub-array number into the high bits and the entry number into the
// low bits. It is the substrate both the DTX cache and the volatile
// object cache are built on.
package lru

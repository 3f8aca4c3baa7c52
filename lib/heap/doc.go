// Package heap implements the persistent zone/chunk/run allocator: a
// transactional heap over a memory-mapped backing file that hands out
// 64-bit offsets (never raw pointers) so the same file can be reopened
// at a different process address and still resolve every cross-
// structure reference as base+offset. Every mutation to the mapped
// region is first appended to a write-ahead log; a transaction either
// commits as a whole or leaves the mapped region untouched.
package heap

// Package btree implements the class-registered B+tree family: a tree
// class supplies key comparison, hashing, and record callbacks; the
// tree itself handles search, split/merge, the embedded-root
// optimization, and anchor-serializable iteration. Every cross-node
// reference is a heap.Offset rather than a language pointer, so a tree
// can in principle be rehydrated from a different base address — the
// node arena backing those offsets is an in-memory map the tree
// creates for itself in New.
package btree

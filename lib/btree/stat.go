package btree

import "fmt"

// Stats summarizes a tree's shape, the SPEC_FULL §6 supplement
// (4.E.1) used by the object layer's emptiness check and by tests
// asserting well-formedness after boundary-case mutation sequences.
type Stats struct {
	Depth    int
	NumNodes int
	NumLeaves int
	NumRecords int
}

// Stat walks the tree and reports its current shape.
func (t *Tree) Stat() Stats {
	s := Stats{Depth: t.Root.Depth}
	if t.Root.embedded {
		s.NumRecords = 1
		return s
	}
	if t.Root.NodeOff == NullOffset {
		return s
	}
	t.walk(t.Root.NodeOff, &s)
	return s
}

func (t *Tree) walk(off Offset, s *Stats) {
	n := t.arena.get(off)
	if n == nil {
		return
	}
	s.NumNodes++
	if n.isLeaf {
		s.NumLeaves++
		s.NumRecords += len(n.records)
		return
	}
	for _, c := range n.children {
		t.walk(c, s)
	}
}

// DebugString renders an indented tree dump, matching the teacher
// idiom of printf-style debug helpers for structural types rather than
// a method on every node.
func (t *Tree) DebugString() string {
	if t.Root.embedded {
		return fmt.Sprintf("<embedded %s>", t.Root.embeddedRec.Key.Encode())
	}
	if t.Root.NodeOff == NullOffset {
		return "<empty>"
	}
	return t.debugNode(t.Root.NodeOff, 0)
}

func (t *Tree) debugNode(off Offset, depth int) string {
	n := t.arena.get(off)
	if n == nil {
		return ""
	}
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	if n.isLeaf {
		return fmt.Sprintf("%sleaf(offset=%d, records=%d)\n", indent, n.offset, len(n.records))
	}
	out := fmt.Sprintf("%sinternal(offset=%d, keys=%d)\n", indent, n.offset, len(n.keys))
	for _, c := range n.children {
		out += t.debugNode(c, depth+1)
	}
	return out
}

// CheckAvailability reports whether key could plausibly be inserted
// without violating class-specific capacity limits. The base tree
// imposes none (heap exhaustion is the allocator's concern, handled at
// RecAlloc time), so it always returns true; a class callback table
// that needs a stricter rule should layer it above Tree.
func (t *Tree) CheckAvailability(key Key) bool { return true }

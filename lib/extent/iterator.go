package extent

import "sort"

// IterFlags are the iterator request bits named in spec §4.F, beyond
// the base Filter: skip_holes, reverse, for_purge, for_discard,
// for_migration. The for_* flags don't change what this tree produces
// — they tell the caller (GC, migration) how to treat the returned
// entries — so Iterate only acts on SkipHoles and Reverse; it returns
// the flags back untouched for the caller to branch on.
type IterFlags struct {
	SkipHoles    bool
	Reverse      bool
	ForPurge     bool
	ForDiscard   bool
	ForMigration bool
}

// Iterate runs Query and additionally synthesizes ClassHole entries
// for any gap in f's range not touched by a visible entry, unless
// SkipHoles is set. Results are sorted by Lo, or reverse-sorted when
// Reverse is set.
func (t *Tree) Iterate(f Filter, flags IterFlags) []Classified {
	out := t.Query(f)

	if !flags.SkipHoles {
		out = append(out, t.holes(f, out)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if flags.Reverse {
			return out[i].Entry.Lo > out[j].Entry.Lo
		}
		return out[i].Entry.Lo < out[j].Entry.Lo
	})
	return out
}

// holes reports the sub-ranges of [f.Lo, f.Hi) that no visible entry
// in classified covers.
func (t *Tree) holes(f Filter, classified []Classified) []Classified {
	type span struct{ lo, hi uint64 }
	var visible []span
	for _, c := range classified {
		if c.Class == ClassVisible {
			lo, hi := c.Entry.Lo, c.Entry.Hi
			if lo < f.Lo {
				lo = f.Lo
			}
			if hi > f.Hi {
				hi = f.Hi
			}
			if lo < hi {
				visible = append(visible, span{lo, hi})
			}
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].lo < visible[j].lo })

	var out []Classified
	cursor := f.Lo
	for _, s := range visible {
		if s.lo > cursor {
			out = append(out, Classified{Entry: Entry{Lo: cursor, Hi: s.lo}, Class: ClassHole})
		}
		if s.hi > cursor {
			cursor = s.hi
		}
	}
	if cursor < f.Hi {
		out = append(out, Classified{Entry: Entry{Lo: cursor, Hi: f.Hi}, Class: ClassHole})
	}
	return out
}

package extent

import "testing"

func TestInsertMergesOverlappingSameVersion(t *testing.T) {
	tree, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 0, Hi: 4, Epoch: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 2, Hi: 8, Epoch: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	all := tree.allEntries()
	if len(all) != 1 {
		t.Fatalf("expected overlapping same-epoch inserts to merge, got %d entries: %v", len(all), all)
	}
	if all[0].Lo != 0 || all[0].Hi != 8 {
		t.Fatalf("merged entry = [%d,%d), want [0,8)", all[0].Lo, all[0].Hi)
	}
}

func TestQueryClassifiesCoveredAndVisible(t *testing.T) {
	tree, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 0, Hi: 10, Epoch: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 0, Hi: 10, Epoch: 2}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res := tree.Query(Filter{Lo: 0, Hi: 10, EpochHi: 2})
	if len(res) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(res))
	}
	var sawCovered, sawVisible bool
	for _, c := range res {
		if c.Entry.Epoch == 1 {
			if c.Class != ClassCovered {
				t.Fatalf("epoch 1 entry should be covered by epoch 2, got %s", c.Class)
			}
			sawCovered = true
		}
		if c.Entry.Epoch == 2 {
			if c.Class != ClassVisible {
				t.Fatalf("epoch 2 entry should be visible, got %s", c.Class)
			}
			sawVisible = true
		}
	}
	if !sawCovered || !sawVisible {
		t.Fatalf("missing expected classifications: covered=%v visible=%v", sawCovered, sawVisible)
	}
}

func TestQueryClassifiesPartial(t *testing.T) {
	tree, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 0, Hi: 10, Epoch: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 4, Hi: 6, Epoch: 2}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res := tree.Query(Filter{Lo: 0, Hi: 10, EpochHi: 2})
	for _, c := range res {
		if c.Entry.Epoch == 1 && c.Class != ClassPartial {
			t.Fatalf("epoch 1 entry partially covered by [4,6) should be Partial, got %s", c.Class)
		}
	}
}

func TestPunchMasksOlderEntries(t *testing.T) {
	tree, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 0, Hi: 10, Epoch: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	tree.Punch(Punch{Lo: 0, Hi: 10, Epoch: 2})

	res := tree.Query(Filter{Lo: 0, Hi: 10, EpochHi: 2})
	if len(res) != 1 || res[0].Class != ClassPunched {
		t.Fatalf("expected single punched entry, got %+v", res)
	}
}

func TestIterateSkipHolesAndReverse(t *testing.T) {
	tree, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 0, Hi: 2, Epoch: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(Entry{Lo: 8, Hi: 10, Epoch: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	withHoles := tree.Iterate(Filter{Lo: 0, Hi: 10, EpochHi: 1}, IterFlags{})
	var holeCount int
	for _, c := range withHoles {
		if c.Class == ClassHole {
			holeCount++
		}
	}
	if holeCount == 0 {
		t.Fatalf("expected a gap between [0,2) and [8,10) to surface as a hole")
	}

	noHoles := tree.Iterate(Filter{Lo: 0, Hi: 10, EpochHi: 1}, IterFlags{SkipHoles: true, Reverse: true})
	for _, c := range noHoles {
		if c.Class == ClassHole {
			t.Fatalf("SkipHoles should suppress hole entries")
		}
	}
	if len(noHoles) >= 2 && noHoles[0].Entry.Lo < noHoles[1].Entry.Lo {
		t.Fatalf("Reverse should sort descending by Lo, got %+v", noHoles)
	}
}

func TestDrainReclaimsDeadEntriesUpToCredits(t *testing.T) {
	tree, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for epoch := uint64(1); epoch <= 5; epoch++ {
		if err := tree.Insert(Entry{Lo: 0, Hi: 10, Epoch: epoch}); err != nil {
			t.Fatalf("Insert(epoch=%d): %v", epoch, err)
		}
	}
	// epochs 1..4 are all covered by epoch 5.
	drained, isEmpty := tree.Drain(2, false)
	if drained != 2 {
		t.Fatalf("Drain(2, false) drained = %d, want 2", drained)
	}
	if isEmpty {
		t.Fatalf("tree should not be empty after partial drain")
	}

	drained, isEmpty = tree.Drain(0, true)
	if drained != 2 {
		t.Fatalf("Drain(0, true) should reclaim remaining 2 dead entries, drained = %d", drained)
	}
	if isEmpty {
		t.Fatalf("the live epoch-5 entry should remain, tree must not report empty")
	}
	remaining := tree.allEntries()
	if len(remaining) != 1 || remaining[0].Epoch != 5 {
		t.Fatalf("expected only epoch 5 entry to remain, got %+v", remaining)
	}
}

func TestSplitAcrossManyInsertsKeepsEntriesSortedByLo(t *testing.T) {
	tree, err := New(3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := uint64(0); i < 100; i++ {
		lo := i * 10
		if err := tree.Insert(Entry{Lo: lo, Hi: lo + 5, Epoch: 1}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	all := tree.allEntries()
	if len(all) != 100 {
		t.Fatalf("expected 100 entries after split cascade, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Lo >= all[i].Lo {
			t.Fatalf("entries not strictly increasing by Lo at index %d: %v, %v", i, all[i-1], all[i])
		}
	}
}

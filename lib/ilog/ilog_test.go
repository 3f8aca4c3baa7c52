package ilog

import "testing"

func TestAppendRejectsOutOfOrder(t *testing.T) {
	l := New()
	if err := l.Append(10, 0, Create); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(5, 0, Update); err != ErrTxRestart {
		t.Fatalf("Append out-of-order = %v, want ErrTxRestart", err)
	}
	if err := l.Append(10, 0, Update); err != ErrTxRestart {
		t.Fatalf("Append at same (epoch, minor_epc) = %v, want ErrTxRestart", err)
	}
	if err := l.Append(10, 1, Update); err != nil {
		t.Fatalf("Append with higher minor_epc should succeed: %v", err)
	}
}

func TestFetchReportsCreateAndPunch(t *testing.T) {
	l := New()
	must(t, l.Append(10, 0, Create))
	must(t, l.Append(20, 0, Update))
	must(t, l.Append(30, 0, Punch))

	res := l.Fetch(25, Bound{})
	if res.CreateEpoch == nil || *res.CreateEpoch != 10 {
		t.Fatalf("CreateEpoch = %v, want 10", res.CreateEpoch)
	}
	if res.UpdateEpoch == nil || *res.UpdateEpoch != 20 {
		t.Fatalf("UpdateEpoch = %v, want 20", res.UpdateEpoch)
	}
	if res.NextPunch == nil || res.NextPunch.Epoch != 30 {
		t.Fatalf("NextPunch = %v, want epoch 30", res.NextPunch)
	}
}

func TestCheckVisibleCoveredNonexistent(t *testing.T) {
	l := New()
	if got := l.Check(Range{Lo: 0, Hi: 100}, Bound{}); got != Nonexistent {
		t.Fatalf("Check on empty log = %s, want nonexistent", got)
	}

	must(t, l.Append(10, 0, Create))
	if got := l.Check(Range{Lo: 0, Hi: 50}, Bound{}); got != Visible {
		t.Fatalf("Check after create = %s, want visible", got)
	}

	must(t, l.Append(20, 0, Punch))
	if got := l.Check(Range{Lo: 0, Hi: 50}, Bound{}); got != Covered {
		t.Fatalf("Check after punch = %s, want covered", got)
	}
}

func TestCheckUncertainWithinBound(t *testing.T) {
	l := New()
	must(t, l.Append(10, 0, Create))
	must(t, l.Append(100, 0, Update))

	// A read at epoch 95 with a 10-wide bound falls within [95, 105];
	// the update at 100 lands inside that window, so the reader cannot
	// tell whether it should be visible without restarting.
	if got := l.Check(Range{Lo: 0, Hi: 95}, Bound{Window: 10}); got != CheckUncertain {
		t.Fatalf("Check = %s, want uncertain", got)
	}
}

func TestPunchAppendsAtMinorEpoch(t *testing.T) {
	l := New()
	must(t, l.Append(10, 0, Create))

	if err := l.Punch(Range{Hi: 20}, 3, Bound{}); err != nil {
		t.Fatalf("Punch: %v", err)
	}
	head, ok := l.Head()
	if !ok || head.Epoch != 20 || head.MinorEpc != 3 || head.Kind != Punch {
		t.Fatalf("Head after Punch = %+v, want {20 3 punch}", head)
	}

	if err := l.Punch(Range{Hi: 20}, 3, Bound{}); err != ErrTxRestart {
		t.Fatalf("Punch at same (epoch, minor_epc) = %v, want ErrTxRestart", err)
	}
}

func TestPunchRestartsWhenUncertain(t *testing.T) {
	l := New()
	must(t, l.Append(10, 0, Create))
	must(t, l.Append(100, 0, Update))

	if err := l.Punch(Range{Hi: 95}, 0, Bound{Window: 10}); err != ErrTxRestart {
		t.Fatalf("Punch within uncertainty window = %v, want ErrTxRestart", err)
	}
}

func TestAggregateCollapsesOldRecordsAndKeepsNewest(t *testing.T) {
	l := New()
	must(t, l.Append(10, 0, Create))
	must(t, l.Append(20, 0, Update))
	must(t, l.Append(30, 0, Update))

	empty := l.Aggregate(Range{Lo: 25})
	if empty {
		t.Fatalf("log still has a live record above the cutoff, should not report empty")
	}
	if len(l.records) != 2 {
		t.Fatalf("expected the newest collapsed record to be retained alongside the kept ones, got %d records", len(l.records))
	}
}

func TestAggregateOnAllPunchedReportsEmpty(t *testing.T) {
	l := New()
	must(t, l.Append(10, 0, Create))
	must(t, l.Append(20, 0, Punch))

	empty := l.Aggregate(Range{Lo: 100})
	if !empty {
		t.Fatalf("aggregating past a punch with nothing newer should empty the log")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

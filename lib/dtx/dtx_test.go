package dtx

import (
	"errors"
	"testing"
	"time"

	"github.com/vosdb/engine/lib/hlc"
	"github.com/vosdb/engine/lib/ilog"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(64, 1, 0, 0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return c
}

func TestBeginPrepareCommitLifecycle(t *testing.T) {
	c := newTestCache(t)
	id := NewID(hlc.New(1, 0))

	if _, err := c.Begin(id, nil, 1, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if status, err := c.Refresh(id); err != nil || status != Inited {
		t.Fatalf("Refresh after Begin: status=%v err=%v", status, err)
	}
	if err := c.Prepare(id); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := c.Commit(id); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	n := c.Flush(time.Now())
	if n != 1 {
		t.Fatalf("Flush drained %d, want 1", n)
	}
	status, err := c.Refresh(id)
	if err != nil {
		t.Fatalf("Refresh after Flush: %v", err)
	}
	if status != Committed {
		t.Fatalf("status after flush = %v, want Committed", status)
	}
}

func TestCommitWithoutPrepareRejected(t *testing.T) {
	c := newTestCache(t)
	id := NewID(hlc.New(1, 0))
	if _, err := c.Begin(id, nil, 1, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.Commit(id); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Commit before Prepare: err=%v, want ErrInvalidTransition", err)
	}
}

func TestAbortEvictsSlot(t *testing.T) {
	c := newTestCache(t)
	id := NewID(hlc.New(1, 0))
	if _, err := c.Begin(id, nil, 1, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.Abort(id); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	status, err := c.Refresh(id)
	if err != nil {
		t.Fatalf("Refresh after Abort: %v", err)
	}
	if status != Aborted {
		t.Fatalf("status after abort = %v, want Aborted", status)
	}
}

func TestCheckReportsDirtyThenClean(t *testing.T) {
	c := newTestCache(t)
	id := NewID(hlc.New(1, 0))
	if _, err := c.Begin(id, nil, 1, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.Prepare(id); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	avail, err := c.Check(id, true)
	if err != nil || avail != AvailableDirty {
		t.Fatalf("Check(anyIntent=true) mid-flight = %v, err=%v, want AvailableDirty", avail, err)
	}
	if avail, err := c.Check(id, false); err != nil || avail != Unavailable {
		t.Fatalf("Check(anyIntent=false) mid-flight = %v, err=%v, want Unavailable", avail, err)
	}

	if err := c.Commit(id); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	c.Flush(time.Now())

	avail, err = c.Check(id, false)
	if err != nil || avail != AvailableClean {
		t.Fatalf("Check after commit = %v, err=%v, want AvailableClean", avail, err)
	}
}

func TestCommitBatchForcesFlushBelowThreshold(t *testing.T) {
	c := newTestCache(t)
	ids := make([]ID, 0, 3)
	for i := 0; i < 3; i++ {
		id := NewID(hlc.New(uint64(i+1), 0))
		if _, err := c.Begin(id, nil, uint64(i+1), 0); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := c.Prepare(id); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		ids = append(ids, id)
	}

	if err := c.CommitBatch(ids); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	for _, id := range ids {
		status, err := c.Refresh(id)
		if err != nil || status != Committed {
			t.Fatalf("Refresh(%v) = %v, err=%v, want Committed", id, status, err)
		}
	}
}

func TestCommitFlushesOnCountThreshold(t *testing.T) {
	c := newTestCache(t)
	c.thresholdCount = 2

	id1 := NewID(hlc.New(1, 0))
	id2 := NewID(hlc.New(2, 0))
	for _, id := range []ID{id1, id2} {
		if _, err := c.Begin(id, nil, 1, 0); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := c.Prepare(id); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
	}

	if err := c.Commit(id1); err != nil {
		t.Fatalf("Commit id1: %v", err)
	}
	if status, _ := c.Refresh(id1); status != Committable {
		t.Fatalf("id1 flushed early, status=%v", status)
	}

	if err := c.Commit(id2); err != nil {
		t.Fatalf("Commit id2: %v", err)
	}
	// Threshold of 2 reached inside Commit itself.
	if status, _ := c.Refresh(id1); status != Committed {
		t.Fatalf("id1 status after threshold flush = %v, want Committed", status)
	}
}

func TestResyncCommitsWhenAllAlivePrepared(t *testing.T) {
	c := newTestCache(t)
	id := NewID(hlc.New(1, 0))
	m := &Membership{
		Participants:     []Target{{Rank: 1, TgtIdx: 0}, {Rank: 2, TgtIdx: 0}},
		RedundancyGroups: [][]int{{0, 1}},
	}
	if _, err := c.Begin(id, m, 1, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.Prepare(id); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	views := []ParticipantView{
		{Target: Target{Rank: 1, TgtIdx: 0}, Status: Prepared, Alive: true},
		{Target: Target{Rank: 2, TgtIdx: 0}, Status: Prepared, Alive: true},
	}
	if err := c.Resync(id, views); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if status, _ := c.Refresh(id); status != Committed {
		t.Fatalf("status after Resync = %v, want Committed", status)
	}
}

func TestResyncAbortsWhenAnyAliveReportsAborted(t *testing.T) {
	c := newTestCache(t)
	id := NewID(hlc.New(1, 0))
	m := &Membership{
		Participants:     []Target{{Rank: 1, TgtIdx: 0}},
		RedundancyGroups: [][]int{{0}},
	}
	if _, err := c.Begin(id, m, 1, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.Prepare(id); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	views := []ParticipantView{{Target: Target{Rank: 1, TgtIdx: 0}, Status: Aborted, Alive: true}}
	if err := c.Resync(id, views); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if status, _ := c.Refresh(id); status != Aborted {
		t.Fatalf("status after Resync = %v, want Aborted", status)
	}
}

func TestResyncCorruptsOnDisagreement(t *testing.T) {
	c := newTestCache(t)
	id := NewID(hlc.New(1, 0))
	m := &Membership{
		Participants:     []Target{{Rank: 1, TgtIdx: 0}, {Rank: 2, TgtIdx: 0}},
		RedundancyGroups: [][]int{{0}, {1}},
	}
	if _, err := c.Begin(id, m, 1, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.Prepare(id); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	// Second group's sole participant is unreachable: neither a clean
	// commit nor a clean abort is possible.
	views := []ParticipantView{{Target: Target{Rank: 1, TgtIdx: 0}, Status: Prepared, Alive: true}}
	if err := c.Resync(id, views); err == nil {
		t.Fatalf("Resync with an unreachable redundancy group: want error, got nil")
	}
	if status, _ := c.Refresh(id); status != Corrupted {
		t.Fatalf("status after disagreeing Resync = %v, want Corrupted", status)
	}
}

func TestCanAggregateUpToRespectsRecentWindow(t *testing.T) {
	g := NewAggregationGuard(10, 5)
	now := uint64(100)

	if g.CanAggregateUpTo(90, now) {
		t.Fatalf("CanAggregateUpTo(90, 100) with cutoff 85: want false")
	}
	if !g.CanAggregateUpTo(80, now) {
		t.Fatalf("CanAggregateUpTo(80, 100) with cutoff 85: want true")
	}
}

func TestCanAggregateUpToRespectsActiveReaders(t *testing.T) {
	g := NewAggregationGuard(10, 5)
	now := uint64(100)

	g.RegisterReader(60)
	if g.CanAggregateUpTo(70, now) {
		t.Fatalf("CanAggregateUpTo(70, 100) past an active reader at 60: want false")
	}
	if !g.CanAggregateUpTo(50, now) {
		t.Fatalf("CanAggregateUpTo(50, 100) before the active reader at 60: want true")
	}

	g.UnregisterReader(60)
	if !g.CanAggregateUpTo(70, now) {
		t.Fatalf("CanAggregateUpTo(70, 100) after reader unregistered: want true")
	}
}

func TestGuardRejectsReadBelowAggregationUpperBound(t *testing.T) {
	g := NewAggregationGuard(10, 5)
	g.RecordAggregation(50)

	if err := g.Guard(40); !errors.Is(err, ilog.ErrTxRestart) {
		t.Fatalf("Guard(40) after aggregating up to 50: err=%v, want ErrTxRestart", err)
	}
	if err := g.Guard(60); err != nil {
		t.Fatalf("Guard(60) after aggregating up to 50: err=%v, want nil", err)
	}
}

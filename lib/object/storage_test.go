package object

import (
	"testing"

	"github.com/vosdb/engine/lib/heap"
)

func TestReserveWithReclaimRetriesUntilSpaceFreed(t *testing.T) {
	attempts := 0
	op := func() (heapOffset, error) {
		attempts++
		if attempts < 3 {
			return 0, heap.ErrNoSpace
		}
		return heapOffset(42), nil
	}
	freed := 0
	reclaim := func() bool {
		freed++
		return true
	}

	off, err := reserveWithReclaim(op, reclaim)
	if err != nil {
		t.Fatalf("reserveWithReclaim: %v", err)
	}
	if off != 42 {
		t.Fatalf("off = %d, want 42", off)
	}
	if attempts != 3 {
		t.Fatalf("op called %d times, want 3", attempts)
	}
	if freed != 2 {
		t.Fatalf("reclaim called %d times, want 2", freed)
	}
}

func TestReserveWithReclaimGivesUpWhenReclaimMakesNoProgress(t *testing.T) {
	attempts := 0
	op := func() (heapOffset, error) {
		attempts++
		return 0, heap.ErrNoSpace
	}
	reclaimCalls := 0
	reclaim := func() bool {
		reclaimCalls++
		return false
	}

	_, err := reserveWithReclaim(op, reclaim)
	if err != heap.ErrNoSpace {
		t.Fatalf("err = %v, want heap.ErrNoSpace", err)
	}
	if attempts != 1 {
		t.Fatalf("op called %d times, want 1", attempts)
	}
	if reclaimCalls != 1 {
		t.Fatalf("reclaim called %d times, want 1", reclaimCalls)
	}
}

func TestReserveWithReclaimStopsAtAttemptCap(t *testing.T) {
	attempts := 0
	op := func() (heapOffset, error) {
		attempts++
		return 0, heap.ErrNoSpace
	}
	reclaimCalls := 0
	reclaim := func() bool {
		reclaimCalls++
		return true // always reports progress, so the attempt cap must bound the loop
	}

	_, err := reserveWithReclaim(op, reclaim)
	if err != heap.ErrNoSpace {
		t.Fatalf("err = %v, want heap.ErrNoSpace", err)
	}
	if attempts != maxReclaimAttempts+1 {
		t.Fatalf("op called %d times, want %d", attempts, maxReclaimAttempts+1)
	}
}

func TestReserveWithReclaimNoHookPropagatesImmediately(t *testing.T) {
	attempts := 0
	op := func() (heapOffset, error) {
		attempts++
		return 0, heap.ErrNoSpace
	}

	_, err := reserveWithReclaim(op, nil)
	if err != heap.ErrNoSpace {
		t.Fatalf("err = %v, want heap.ErrNoSpace", err)
	}
	if attempts != 1 {
		t.Fatalf("op called %d times, want 1", attempts)
	}
}

func TestReserveWithReclaimNonNoSpaceErrorNotRetried(t *testing.T) {
	attempts := 0
	op := func() (heapOffset, error) {
		attempts++
		return 0, heap.ErrInvalidArgument
	}
	reclaimCalls := 0
	reclaim := func() bool {
		reclaimCalls++
		return true
	}

	_, err := reserveWithReclaim(op, reclaim)
	if err != heap.ErrInvalidArgument {
		t.Fatalf("err = %v, want heap.ErrInvalidArgument", err)
	}
	if attempts != 1 {
		t.Fatalf("op called %d times, want 1", attempts)
	}
	if reclaimCalls != 0 {
		t.Fatalf("reclaim called %d times, want 0 — only heap.ErrNoSpace should trigger a reclaim retry", reclaimCalls)
	}
}

package object

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lni/vfs"

	"github.com/vosdb/engine/lib/heap"
	"github.com/vosdb/engine/lib/ilog"
)

func newTestPool(t *testing.T, name string) *Pool {
	t.Helper()
	h, err := heap.Create(vfs.NewMem(), name, 4)
	if err != nil {
		t.Fatalf("heap.Create: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	p, err := NewPool(h, 16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func testOID(pub uint64) UnitOID { return UnitOID{Class: 1, Shard: 0, PubID: pub} }

func TestInsertFetchSingleValueRoundTrip(t *testing.T) {
	p := newTestPool(t, "sv")
	oid := testOID(1)

	if err := p.Insert("cont", oid, []byte("dkey-1"), []byte("akey-1"), nil, []byte("hello"), 10, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Insert("cont", oid, []byte("dkey-1"), []byte("akey-1"), nil, []byte("world"), 20, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v, ok, err := p.Fetch("cont", oid, []byte("dkey-1"), []byte("akey-1"), nil, 15)
	if err != nil || !ok {
		t.Fatalf("Fetch@15: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(v, []byte("hello")) {
		t.Fatalf("Fetch@15 = %q, want %q", v, "hello")
	}

	v, ok, err = p.Fetch("cont", oid, []byte("dkey-1"), []byte("akey-1"), nil, 25)
	if err != nil || !ok {
		t.Fatalf("Fetch@25: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(v, []byte("world")) {
		t.Fatalf("Fetch@25 = %q, want %q", v, "world")
	}
}

func TestInsertFetchExtentRoundTrip(t *testing.T) {
	p := newTestPool(t, "evt")
	oid := testOID(2)

	payload := []byte("0123456789")
	if err := p.Insert("cont", oid, []byte("dkey"), []byte("akey"), &Range{Lo: 0, Hi: 10}, payload, 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := p.Fetch("cont", oid, []byte("dkey"), []byte("akey"), &Range{Lo: 0, Hi: 10}, 5)
	if err != nil || !ok {
		t.Fatalf("Fetch: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Fetch = %q, want %q", got, payload)
	}

	got, ok, err = p.Fetch("cont", oid, []byte("dkey"), []byte("akey"), &Range{Lo: 2, Hi: 6}, 5)
	if err != nil || !ok {
		t.Fatalf("Fetch subrange: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, payload[2:6]) {
		t.Fatalf("Fetch subrange = %q, want %q", got, payload[2:6])
	}
}

func TestFetchWrongKindIsRejected(t *testing.T) {
	p := newTestPool(t, "mismatch")
	oid := testOID(3)

	if err := p.Insert("cont", oid, []byte("dkey"), []byte("akey"), nil, []byte("v"), 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, _, err := p.Fetch("cont", oid, []byte("dkey"), []byte("akey"), &Range{Lo: 0, Hi: 1}, 1); !errors.Is(err, ErrNotAnExtentAkey) {
		t.Fatalf("Fetch ranged against single-value akey: err=%v, want ErrNotAnExtentAkey", err)
	}
}

func TestPunchObjectEvictsCacheAndMarksPunched(t *testing.T) {
	p := newTestPool(t, "punchobj")
	oid := testOID(4)

	if err := p.Insert("cont", oid, []byte("dkey"), []byte("akey"), nil, []byte("v"), 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.PunchObject("cont", oid, 2, 0); err != nil {
		t.Fatalf("PunchObject: %v", err)
	}

	cont, err := p.Container("cont")
	if err != nil {
		t.Fatalf("Container: %v", err)
	}
	obj, ok := cont.Lookup(oid)
	if !ok {
		t.Fatalf("object vanished after punch")
	}
	if !obj.Punched {
		t.Fatalf("object not marked punched")
	}

	if _, ok, _ := p.Fetch("cont", oid, []byte("dkey"), []byte("akey"), nil, 3); ok {
		t.Fatalf("Fetch returned a value for a punched object")
	}
}

func TestPunchKeyPropagatesWhenEmpty(t *testing.T) {
	p := newTestPool(t, "punchkey")
	oid := testOID(5)

	if err := p.Insert("cont", oid, []byte("dkey"), []byte("akey"), nil, []byte("v"), 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	cont, _ := p.Container("cont")
	obj, _ := cont.Lookup(oid)
	dk, ok := obj.lookupDkey([]byte("dkey"))
	if !ok {
		t.Fatalf("dkey not found before punch")
	}
	if _, ok := dk.lookupAkey([]byte("akey")); !ok {
		t.Fatalf("akey not found before punch")
	}

	if err := p.PunchKey("cont", oid, []byte("dkey"), []byte("akey"), 2, 0, 100); err != nil {
		t.Fatalf("PunchKey: %v", err)
	}

	if _, ok := dk.lookupAkey([]byte("akey")); ok {
		t.Fatalf("akey survived punch propagation")
	}
	if _, ok := obj.lookupDkey([]byte("dkey")); ok {
		t.Fatalf("dkey survived punch propagation after emptying")
	}
}

func TestPunchKeyConflictRestartsCaller(t *testing.T) {
	p := newTestPool(t, "conflict")
	oid := testOID(6)

	if err := p.Insert("cont", oid, []byte("dkey"), []byte("akey"), nil, []byte("v"), 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// A second writer touches the dkey at epoch 50, after the reader's bound of 10.
	if err := p.Insert("cont", oid, []byte("dkey"), []byte("other-akey"), nil, []byte("v2"), 50, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.PunchKey("cont", oid, []byte("dkey"), []byte("other-akey"), 51, 0, 10); !errors.Is(err, ilog.ErrTxRestart) {
		t.Fatalf("PunchKey with stale read bound: err=%v, want ErrTxRestart", err)
	}
}

func TestNoAkeyInsertFetchSingleValueRoundTrip(t *testing.T) {
	p := newTestPool(t, "noakey-sv")
	oid := testOID(20)

	if err := p.Insert("cont", oid, []byte("dkey"), nil, nil, []byte("hello"), 10, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Insert("cont", oid, []byte("dkey"), nil, nil, []byte("world"), 20, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v, ok, err := p.Fetch("cont", oid, []byte("dkey"), nil, nil, 15)
	if err != nil || !ok {
		t.Fatalf("Fetch@15: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(v, []byte("hello")) {
		t.Fatalf("Fetch@15 = %q, want %q", v, "hello")
	}

	cont, _ := p.Container("cont")
	obj, _ := cont.Lookup(oid)
	dk, ok := obj.lookupDkey([]byte("dkey"))
	if !ok {
		t.Fatalf("dkey not found")
	}
	if dk.store.len() != 0 {
		t.Fatalf("no_akey dkey has %d akey-directory entries, want 0", dk.store.len())
	}
	if !dk.Flags.has(KRNoAkey) {
		t.Fatalf("KRNoAkey not set on a dkey addressed with an empty akey name")
	}
}

func TestNoAkeyInsertFetchExtentRoundTrip(t *testing.T) {
	p := newTestPool(t, "noakey-evt")
	oid := testOID(21)

	payload := []byte("0123456789")
	if err := p.Insert("cont", oid, []byte("dkey"), nil, &Range{Lo: 0, Hi: 10}, payload, 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := p.Fetch("cont", oid, []byte("dkey"), nil, &Range{Lo: 2, Hi: 6}, 5)
	if err != nil || !ok {
		t.Fatalf("Fetch subrange: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, payload[2:6]) {
		t.Fatalf("Fetch subrange = %q, want %q", got, payload[2:6])
	}
}

func TestNoAkeyAndAkeyAddressingConflict(t *testing.T) {
	p := newTestPool(t, "noakey-conflict")
	oid := testOID(22)

	if err := p.Insert("cont", oid, []byte("dkey"), nil, nil, []byte("v"), 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Insert("cont", oid, []byte("dkey"), []byte("akey"), nil, []byte("v2"), 2, 0); !errors.Is(err, ErrNoAkeyConflict) {
		t.Fatalf("Insert with akey name on a no_akey dkey: err=%v, want ErrNoAkeyConflict", err)
	}

	oid2 := testOID(23)
	if err := p.Insert("cont", oid2, []byte("dkey"), []byte("akey"), nil, []byte("v"), 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Insert("cont", oid2, []byte("dkey"), nil, nil, []byte("v2"), 2, 0); !errors.Is(err, ErrNoAkeyConflict) {
		t.Fatalf("Insert without akey name on an akey-addressed dkey: err=%v, want ErrNoAkeyConflict", err)
	}
}

func TestNoAkeyPunchPropagatesToObject(t *testing.T) {
	p := newTestPool(t, "noakey-punch")
	oid := testOID(24)

	if err := p.Insert("cont", oid, []byte("dkey"), nil, nil, []byte("v"), 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	cont, _ := p.Container("cont")
	obj, _ := cont.Lookup(oid)

	if err := p.PunchKey("cont", oid, []byte("dkey"), nil, 2, 0, 100); err != nil {
		t.Fatalf("PunchKey: %v", err)
	}
	if _, ok := obj.lookupDkey([]byte("dkey")); ok {
		t.Fatalf("no_akey dkey survived punch propagation after emptying")
	}
}

func TestObjectStatCountsKeysAndLatestEpoch(t *testing.T) {
	p := newTestPool(t, "stat")
	oid := testOID(7)

	if err := p.Insert("cont", oid, []byte("d1"), []byte("a1"), nil, []byte("v"), 5, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Insert("cont", oid, []byte("d1"), []byte("a2"), nil, []byte("v"), 7, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Insert("cont", oid, []byte("d2"), []byte("a1"), nil, []byte("v"), 9, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	cont, _ := p.Container("cont")
	obj, _ := cont.Lookup(oid)
	st := obj.Stat()
	if st.DkeyCount != 2 {
		t.Fatalf("DkeyCount = %d, want 2", st.DkeyCount)
	}
	if st.AkeyCount != 3 {
		t.Fatalf("AkeyCount = %d, want 3", st.AkeyCount)
	}
	if st.Punched {
		t.Fatalf("Stat reports Punched before any punch")
	}
}

func TestObjectCacheHoldReleaseRefcounting(t *testing.T) {
	p := newTestPool(t, "cache")
	oid := testOID(8)
	cont, _ := p.Container("cont")

	obj1, err := p.Cache().Hold(cont, oid, HoldCreate)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	obj2, err := p.Cache().Hold(cont, oid, HoldCreate)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if obj1 != obj2 {
		t.Fatalf("two holds on the same oid returned different handles")
	}

	p.Cache().Release(oid, 0, false)
	// One reference remains; the handle must still resolve via Lookup.
	if _, ok := cont.Lookup(oid); !ok {
		t.Fatalf("object missing from container after partial release")
	}

	p.Cache().Release(oid, HoldKillDkey, false)
	// killed + refs reached zero: the cache entry itself is gone, but the
	// container's own directory (independent of the cache) still has it.
	if _, ok := cont.Lookup(oid); !ok {
		t.Fatalf("container lost its object after cache eviction")
	}
}

package object

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/vosdb/engine/lib/btree"
	"github.com/vosdb/engine/lib/extent"
	"github.com/vosdb/engine/lib/ilog"
)

// ErrConflict surfaces as ilog.ErrTxRestart to callers; kept as a
// distinct sentinel so object-layer conflict checks can be
// distinguished from a raw incarnation-log append rejection in logs
// and tests, while still satisfying errors.Is(err, ilog.ErrTxRestart).
var ErrConflict = errors.Wrap(ilog.ErrTxRestart, "object: ancestor touched more recently than read bound")

// maxPropagationLevels bounds key-punch propagation to at most three
// levels (akey → dkey → object), per spec §4.H.
const maxPropagationLevels = 3

// PunchObject marks oid punched at epoch and evicts its cache entry
// (spec §4.H: "Object punch: marks the entire object punched at epoch
// and evicts its cache entry").
func (p *Pool) PunchObject(contID string, oid UnitOID, epoch uint64, minorEpc uint32) error {
	cont, err := p.Container(contID)
	if err != nil {
		return err
	}
	obj, ok := cont.Lookup(oid)
	if !ok {
		return nil
	}
	if err := obj.Log.Punch(ilog.Range{Hi: epoch}, minorEpc, ilog.Bound{}); err != nil {
		return err
	}
	obj.Punched = true
	p.cache.Evict(oid)
	return nil
}

// PunchKey appends a punch to the named akey's incarnation log and, if
// the akey's subtree becomes empty, propagates the punch upward
// (akey → dkey → object) subject to a conflict check at every step and
// a three-level cap (spec §4.H). readBound is the epoch the caller's
// transaction read at; a propagation step conflicts, and restarts with
// ErrConflict (which wraps ilog.ErrTxRestart), if the ancestor level
// was touched more recently than readBound.
func (p *Pool) PunchKey(contID string, oid UnitOID, dkey, akeyName []byte, epoch uint64, minorEpc uint32, readBound uint64) error {
	cont, err := p.Container(contID)
	if err != nil {
		return err
	}
	obj, ok := cont.Lookup(oid)
	if !ok {
		return nil
	}
	dk, ok := obj.lookupDkey(dkey)
	if !ok {
		return nil
	}

	if len(akeyName) == 0 {
		return p.punchDkeyDirect(obj, dkey, dk, epoch, minorEpc, readBound)
	}

	ak, ok := dk.lookupAkey(akeyName)
	if !ok {
		return nil
	}

	if err := ak.Log.Punch(ilog.Range{Hi: epoch}, minorEpc, ilog.Bound{}); err != nil {
		return err
	}
	if !isAkeyContentEmpty(ak, epoch) {
		return nil
	}

	levels := 1 // the akey punch itself counts as the first level
	if err := checkConflict(dk.LastTouch, readBound); err != nil {
		return err
	}
	if err := dk.removeAkey(akeyName); err != nil {
		return err
	}

	if dk.IsEmpty() && levels < maxPropagationLevels {
		levels++
		if err := checkConflict(obj.LastTouch, readBound); err != nil {
			return err
		}
		if err := obj.removeDkey(dkey); err != nil {
			return err
		}
	}

	return nil
}

// punchDkeyDirect punches a no_akey dkey's own log directly — there is
// no akey level beneath it, so this punch is itself the propagation
// path's first (and only) step before checking the object above.
func (p *Pool) punchDkeyDirect(obj *Object, dkey []byte, dk *Dkey, epoch uint64, minorEpc uint32, readBound uint64) error {
	if err := dk.Log.Punch(ilog.Range{Hi: epoch}, minorEpc, ilog.Bound{}); err != nil {
		return err
	}
	if !isValueContentEmpty(dk.SV, dk.EVT, epoch) {
		return nil
	}
	if err := checkConflict(obj.LastTouch, readBound); err != nil {
		return err
	}
	return obj.removeDkey(dkey)
}

func isAkeyContentEmpty(ak *Akey, punchEpoch uint64) bool {
	return isValueContentEmpty(ak.SV, ak.EVT, punchEpoch)
}

// isValueContentEmpty reports whether a single-value or extent tree
// (the two mutually-exclusive value carriers of Akey and no_akey Dkey
// alike) holds only punched content: every extent entry is classed
// punched, or no single-value record is newer than punchEpoch.
func isValueContentEmpty(sv *btree.Tree, evt *extent.Tree, punchEpoch uint64) bool {
	if evt != nil {
		full := extent.Filter{Lo: 0, Hi: math.MaxUint64, EpochHi: math.MaxUint64}
		for _, c := range evt.Query(full) {
			if c.Class != extent.ClassPunched {
				return false
			}
		}
		return true
	}
	if sv != nil {
		if sv.Stat().NumRecords == 0 {
			return true
		}
		// A punch leaves single-value records in place; they are punched
		// content when the newest one is at or below the punch epoch.
		cur := sv.IterPrepare()
		if !cur.Probe(btree.OpLast, btree.Key{}) {
			return true
		}
		rec, ok := cur.Fetch()
		return !ok || rec.Key.Uint <= punchEpoch
	}
	return true
}

// checkConflict restarts the caller when an ancestor level was
// touched after the caller's read bound — a concurrent writer landed
// there since the transaction began its read.
func checkConflict(ancestorLastTouch, readBound uint64) error {
	if ancestorLastTouch > readBound {
		return ErrConflict
	}
	return nil
}

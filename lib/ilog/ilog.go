package ilog

import (
	"github.com/cockroachdb/errors"
)

// Kind tags a record's effect on the key it belongs to.
type Kind uint8

const (
	Create Kind = iota
	Update
	Punch
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	case Punch:
		return "punch"
	default:
		return "unknown"
	}
}

// ErrTxRestart is returned when an operation observes an epoch
// ordering violation a caller must resolve by restarting its
// transaction with a fresh read timestamp (spec §4.G/§4.H's
// `ERR_TX_RESTART`).
var ErrTxRestart = errors.New("ilog: transaction must restart")

// Record is a single incarnation-log entry: spec §4.G's
// `{epoch, minor_epc, kind}`.
type Record struct {
	Epoch    uint64
	MinorEpc uint32
	Kind     Kind
}

func (r Record) before(o Record) bool {
	if r.Epoch != o.Epoch {
		return r.Epoch < o.Epoch
	}
	return r.MinorEpc < o.MinorEpc
}

func (r Record) at(epoch uint64, minorEpc uint32) bool {
	return r.Epoch == epoch && r.MinorEpc == minorEpc
}

// Log is a single key's incarnation log: an append-only, strictly
// (epoch, minor_epc)-increasing sequence of Records.
type Log struct {
	records []Record
}

// New returns an empty incarnation log.
func New() *Log { return &Log{} }

// Head returns the most recently appended record, or the zero Record
// and false if the log is empty.
func (l *Log) Head() (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[len(l.records)-1], true
}

// Append adds a record, rejecting it if it is not newer than the log
// head (spec §4.G: "must be newer than the log head; rejects
// otherwise").
func (l *Log) Append(epoch uint64, minorEpc uint32, kind Kind) error {
	rec := Record{Epoch: epoch, MinorEpc: minorEpc, Kind: kind}
	if head, ok := l.Head(); ok && !head.before(rec) {
		return ErrTxRestart
	}
	l.records = append(l.records, rec)
	return nil
}

// Bound is the uncertainty window a reader supplies to Fetch/Check: an
// epoch is uncertain if it falls inside [epoch, epoch+bound] and a
// concurrent writer could still land there.
type Bound struct {
	Window uint64
}

func (b Bound) contains(readEpoch, recordEpoch uint64) bool {
	if recordEpoch < readEpoch {
		return false
	}
	return recordEpoch <= readEpoch+b.Window
}

// FetchResult is spec §4.G's `fetch(epoch, bound) →
// {prior_punch, create_epoch, next_punch, update_epoch, uncertain?}`.
type FetchResult struct {
	PriorPunch  *Record
	CreateEpoch *uint64
	NextPunch   *Record
	UpdateEpoch *uint64
	Uncertain   bool
}

// Fetch summarizes the log's state as of epoch, within the reader's
// uncertainty bound.
func (l *Log) Fetch(epoch uint64, bound Bound) FetchResult {
	var res FetchResult

	for i := range l.records {
		r := l.records[i]
		if bound.contains(epoch, r.Epoch) && r.Epoch != epoch {
			res.Uncertain = true
		}
		if r.Epoch > epoch {
			if r.Kind == Punch && res.NextPunch == nil {
				res.NextPunch = &l.records[i]
			}
			continue
		}
		switch r.Kind {
		case Create:
			e := r.Epoch
			res.CreateEpoch = &e
		case Update:
			e := r.Epoch
			res.UpdateEpoch = &e
		case Punch:
			rc := r
			res.PriorPunch = &rc
		}
	}
	return res
}

// CheckResult classifies a key's visibility over a range, spec §4.G's
// `check(range)` return values.
type CheckResult int

const (
	Visible CheckResult = iota
	Covered
	Nonexistent
	CheckUncertain
)

func (c CheckResult) String() string {
	switch c {
	case Visible:
		return "visible"
	case Covered:
		return "covered"
	case Nonexistent:
		return "nonexistent"
	case CheckUncertain:
		return "uncertain"
	default:
		return "unknown"
	}
}

// Range is the epoch window a Check or Aggregate call inspects.
type Range struct {
	Lo, Hi uint64
}

// Check classifies the key's visibility across r, within bound's
// uncertainty window.
func (l *Log) Check(r Range, bound Bound) CheckResult {
	if len(l.records) == 0 {
		return Nonexistent
	}

	fetch := l.Fetch(r.Hi, bound)
	if fetch.Uncertain {
		return CheckUncertain
	}
	if fetch.PriorPunch != nil && fetch.CreateEpoch != nil && fetch.PriorPunch.Epoch >= *fetch.CreateEpoch {
		return Covered
	}
	if fetch.CreateEpoch == nil && fetch.UpdateEpoch == nil {
		return Nonexistent
	}
	return Visible
}

// Aggregate collapses records strictly older than r.Lo, the cutoff at
// or below which no active reader could still need them, returning
// true if the log is now empty and the key can be dropped.
func (l *Log) Aggregate(r Range) bool {
	keep := l.records[:0]
	var newest *Record
	for i := range l.records {
		if l.records[i].Epoch >= r.Lo {
			keep = append(keep, l.records[i])
			continue
		}
		if newest == nil || newest.before(l.records[i]) {
			rc := l.records[i]
			newest = &rc
		}
	}
	if newest != nil && newest.Kind != Punch {
		keep = append([]Record{*newest}, keep...)
	}
	l.records = keep
	return len(l.records) == 0
}

// Punch appends a punch record at r.Hi/minorEpc, restarting the
// caller's transaction with ErrTxRestart if epoch precedes the log
// head (spec §4.G: "If the caller's epoch precedes the log head the
// operation restarts") or if bound finds the punch epoch uncertain
// against the log's current state (spec §4.G: "uncertain ... the
// caller is expected to restart").
func (l *Log) Punch(r Range, minorEpc uint32, bound Bound) error {
	if l.Fetch(r.Hi, bound).Uncertain {
		return ErrTxRestart
	}
	return l.Append(r.Hi, minorEpc, Punch)
}

package extent

// Filter narrows a query to a byte range, an epoch window, and the
// punch bound the caller already resolved against the incarnation log
// (spec §3's Filter{extent_range, epoch_lo, epoch_hi, punch_epc,
// punch_minor_epc}).
type Filter struct {
	Lo, Hi        uint64
	EpochLo       uint64
	EpochHi       uint64
	PunchEpoch    uint64
	PunchMinorEpc uint32
}

func (f Filter) rangeEntry() Entry { return Entry{Lo: f.Lo, Hi: f.Hi} }

func (f Filter) inEpochWindow(e Entry) bool {
	return e.Epoch >= f.EpochLo && e.Epoch <= f.EpochHi
}

// punches reports whether the filter's caller-supplied bound alone
// masks e, independent of any Punch stored in the tree.
func (f Filter) punchesOut(e Entry) bool {
	if f.PunchEpoch == 0 {
		return false
	}
	if e.Epoch != f.PunchEpoch {
		return e.Epoch < f.PunchEpoch
	}
	return e.MinorEpc < f.PunchMinorEpc
}

// Class tags how a query classified an entry relative to its peers and
// any punch record, per spec §4.F's visibility rules.
type Class int

const (
	ClassVisible Class = iota
	ClassCovered
	ClassPartial
	ClassPunched
	ClassHole
)

func (c Class) String() string {
	switch c {
	case ClassVisible:
		return "visible"
	case ClassCovered:
		return "covered"
	case ClassPartial:
		return "partial"
	case ClassPunched:
		return "punched"
	case ClassHole:
		return "hole"
	default:
		return "unknown"
	}
}

// Classified pairs an entry (or, for Class == ClassHole, a synthetic
// zero-BioAddr placeholder spanning the gap) with its query
// classification.
type Classified struct {
	Entry Entry
	Class Class
}

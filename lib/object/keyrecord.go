package object

// KRFlags are the kr_bmap bits spec §4.H names on a key record: which
// intermediate level exists and what kind of child the lowest level
// carries.
type KRFlags uint8

const (
	// KRNoAkey marks a dkey that skips the akey level entirely, storing
	// its value (or extent tree) directly.
	KRNoAkey KRFlags = 1 << iota
	// KRBtr marks a single-value B+tree child.
	KRBtr
	// KREvt marks an extent-tree child.
	KREvt
	// KRDkeyRole/KRAkeyRole record which role this key record plays,
	// for key records shared across a generic key-record table.
	KRDkeyRole
	KRAkeyRole
)

func (f KRFlags) has(bit KRFlags) bool { return f&bit != 0 }

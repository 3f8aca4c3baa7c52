package dtx

// DceFlags mark per-slot bookkeeping bits the incarnation log cares
// about while a transaction is in flight.
type DceFlags uint8

const (
	// DceInDoubt marks dependent incarnation-log records as not yet
	// safe to treat as committed; cleared by a batched commit.
	DceInDoubt DceFlags = 1 << iota
	// DceLeader marks the slot as owned by this target acting as DTX
	// leader (as opposed to a participant copy).
	DceLeader
)

// Slot is one active transaction's cache record (spec §4.I: "each
// slot stores {dti, status, membership_ptr, epoch, minor_epc,
// dce_flags}").
type Slot struct {
	DTI        ID
	Status     Status
	Membership *Membership
	Epoch      uint64
	MinorEpc   uint32
	DceFlags   DceFlags
}

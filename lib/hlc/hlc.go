package hlc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// ErrSync is returned by Recv when a remote timestamp's physical component
// exceeds the configured epsilon ahead of the local clock.
var ErrSync = errors.New("hlc: remote clock skew exceeds epsilon")

// ErrOverflow is returned by Now once the physical component would exceed
// the 46-bit field it is packed into. At 1/16ns resolution this field
// overflows after roughly 36 years; the engine refuses to hand out further
// timestamps rather than silently wrap.
var ErrOverflow = errors.New("hlc: physical clock has exhausted its 46-bit range")

// --------------------------------------------------------------------------
// Timestamp
// --------------------------------------------------------------------------

const (
	logicalBits = 18
	logicalMask = (uint64(1) << logicalBits) - 1
	physicalMax = (uint64(1) << (64 - logicalBits)) - 1

	// physicalShift converts a wallclock nanosecond duration into the
	// clock's internal tick resolution (1/16 ns per spec.md §4.A).
	physicalShift = 4

	// epsilonToTicks converts a time.Duration (nanoseconds) into the
	// same tick resolution as physicalShift.
	epsilonToTicks = uint64(1) << physicalShift
)

// epoch2021 is the reference point the physical component is measured
// against: 2021-01-01T00:00:00Z.
var epoch2021 = time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)

// Timestamp is a packed HLC value: the high 46 bits are the physical
// component, the low 18 bits are a logical tie-breaker.
type Timestamp uint64

// New packs a physical/logical pair into a Timestamp. It is the caller's
// responsibility to ensure physical fits the 46-bit field; New keeps
// only the low 46 bits (higher bits are dropped, not saturated) rather
// than panicking, so that tests can probe boundary values.
func New(physical uint64, logical uint32) Timestamp {
	return Timestamp((physical&physicalMax)<<logicalBits | (uint64(logical) & logicalMask))
}

// Physical returns the physical component of the timestamp.
func (t Timestamp) Physical() uint64 {
	return uint64(t) >> logicalBits
}

// Logical returns the logical component of the timestamp.
func (t Timestamp) Logical() uint32 {
	return uint32(uint64(t) & logicalMask)
}

// String renders the timestamp as "physical@logical", matching the
// original implementation's debug formatter.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d@%d", t.Physical(), t.Logical())
}

// Compare returns -1, 0, or 1 if t is less than, equal to, or greater than
// o. Ties within the same physical value are broken by the logical
// counter, matching the "ties broken by minor_epc" ordering rule in §5.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t < o:
		return -1
	case t > o:
		return 1
	default:
		return 0
	}
}

// ToUnixNano converts a Timestamp to Unix nanoseconds, losing the
// logical-counter precision (matching the irreversible direction of the
// conversion named in spec.md §4.A).
func (t Timestamp) ToUnixNano() int64 {
	nanos := int64(t.Physical()) >> physicalShift
	return epoch2021.UnixNano() + nanos
}

// FromUnixNano converts Unix nanoseconds into a Timestamp with a zero
// logical component.
func FromUnixNano(nanos int64) Timestamp {
	delta := nanos - epoch2021.UnixNano()
	if delta < 0 {
		delta = 0
	}
	physical := uint64(delta) << physicalShift
	return New(physical, 0)
}

// ToTimespec/FromTimespec round-trip through the (seconds, nanoseconds)
// pair used by the on-disk/wire timespec representation named in §4.A.
type Timespec struct {
	Seconds     int64
	Nanoseconds int64
}

func (t Timestamp) ToTimespec() Timespec {
	nano := t.ToUnixNano()
	return Timespec{Seconds: nano / int64(time.Second), Nanoseconds: nano % int64(time.Second)}
}

func FromTimespec(ts Timespec) Timestamp {
	return FromUnixNano(ts.Seconds*int64(time.Second) + ts.Nanoseconds)
}

// --------------------------------------------------------------------------
// Clock
// --------------------------------------------------------------------------

// DefaultEpsilon is the maximum accepted remote clock skew for Recv.
const DefaultEpsilon = time.Second

// Clock is a hybrid logical clock. The zero value is not usable; construct
// one with NewClock. A Clock is safe for concurrent use: Now and Recv both
// advance the shared state with a compare-and-swap loop, mirroring the
// atomic.Uint64.CompareAndSwap pattern mapleImpl uses for its write index.
type Clock struct {
	state   atomic.Uint64 // packed Timestamp
	epsilon atomic.Int64  // time.Duration
	nowFn   func() time.Time
}

// NewClock creates a Clock seeded at the current wallclock time.
func NewClock() *Clock {
	c := &Clock{nowFn: time.Now}
	c.epsilon.Store(int64(DefaultEpsilon))
	c.state.Store(uint64(c.physicalNow()))
	return c
}

// Epsilon returns the currently configured maximum accepted clock skew.
func (c *Clock) Epsilon() time.Duration {
	return time.Duration(c.epsilon.Load())
}

// SetEpsilon updates the maximum accepted remote clock skew used by Recv.
func (c *Clock) SetEpsilon(d time.Duration) {
	c.epsilon.Store(int64(d))
}

func (c *Clock) physicalNow() Timestamp {
	return FromUnixNano(c.nowFn().UnixNano())
}

// Now produces a new, strictly-increasing Timestamp. If the current
// wallclock physical time is greater than the clock's last-handed-out
// timestamp, the new timestamp uses it with a zero logical counter;
// otherwise the logical counter is incremented, preserving total order
// under back-to-back calls that land within the same physical tick
// (invariant 4 in spec.md §8).
func (c *Clock) Now() (Timestamp, error) {
	for {
		old := Timestamp(c.state.Load())
		wall := c.physicalNow()

		var next Timestamp
		if wall.Physical() > old.Physical() {
			next = New(wall.Physical(), 0)
		} else {
			if old.Logical() == uint32(logicalMask) {
				// logical counter exhausted within the same physical
				// tick; borrow the next physical tick instead of
				// wrapping, preserving monotonicity.
				next = New(old.Physical()+1, 0)
			} else {
				next = New(old.Physical(), old.Logical()+1)
			}
		}

		if next.Physical() > physicalMax {
			return 0, ErrOverflow
		}

		if c.state.CompareAndSwap(uint64(old), uint64(next)) {
			return next, nil
		}
	}
}

// Recv merges a remote timestamp into the clock, as happens when a message
// carrying an HLC-stamped epoch is received from another engine. It
// refuses with ErrSync if the remote timestamp's physical component is
// further ahead of local wallclock time than Epsilon allows.
func (c *Clock) Recv(remote Timestamp) (Timestamp, error) {
	wall := c.physicalNow()
	epsilonTicks := uint64(c.Epsilon()) * epsilonToTicks
	if remote.Physical() > wall.Physical() && remote.Physical()-wall.Physical() > epsilonTicks {
		return 0, ErrSync
	}

	for {
		old := Timestamp(c.state.Load())

		maxPhysical := old.Physical()
		if wall.Physical() > maxPhysical {
			maxPhysical = wall.Physical()
		}
		if remote.Physical() > maxPhysical {
			maxPhysical = remote.Physical()
		}

		var next Timestamp
		switch maxPhysical {
		case old.Physical():
			if maxPhysical == remote.Physical() && remote.Logical() >= old.Logical() {
				next = New(maxPhysical, remote.Logical()+1)
			} else {
				next = New(maxPhysical, old.Logical()+1)
			}
		case remote.Physical():
			l := remote.Logical()
			if maxPhysical == old.Physical() && old.Logical() > l {
				l = old.Logical()
			}
			next = New(maxPhysical, l+1)
		default:
			next = New(maxPhysical, 0)
		}

		if next.Physical() > physicalMax {
			return 0, ErrOverflow
		}

		if c.state.CompareAndSwap(uint64(old), uint64(next)) {
			return next, nil
		}
	}
}

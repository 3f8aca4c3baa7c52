package dtx

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
)

// ErrCorrupted flags a resync outcome that needs external
// intervention: participants disagree in a way that is neither a
// clean commit nor a clean abort.
var ErrCorrupted = errors.New("dtx: resync left transaction corrupted, external intervention required")

// ParticipantView is one participant's reported status for a DTX
// being resynced after a leader change.
type ParticipantView struct {
	Target Target
	Status Status
	Alive  bool
}

// Resync implements spec §4.I's post-leader-change recovery: for a
// prepared transaction, commit if every alive participant reports
// prepared and no redundancy group shows a corrupted loss; abort if
// at least one alive participant reports aborted; otherwise mark
// corrupted.
func (c *Cache) Resync(id ID, views []ParticipantView) error {
	c.mu.Lock()
	slot, ok := c.lookupLocked(id)
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	if slot.Status != Prepared {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	membership := slot.Membership
	c.mu.Unlock()

	var errs *multierror.Error

	allAlivePrepared := true
	anyAliveAborted := false
	aliveByGroup := make(map[int]int)
	groupSize := make(map[int]int)

	if membership != nil {
		for i, p := range membership.Participants {
			g := groupIndex(membership, i)
			groupSize[g]++
			view := findView(views, p)
			if view == nil || !view.Alive {
				continue
			}
			aliveByGroup[g]++
			switch view.Status {
			case Prepared:
			case Aborted:
				anyAliveAborted = true
			default:
				allAlivePrepared = false
				errs = multierror.Append(errs, errors.Newf(
					"dtx: participant rank=%d tgt=%d reported unexpected status %s",
					p.Rank, p.TgtIdx, view.Status))
			}
		}
	}

	groupCorrupted := false
	for g, total := range groupSize {
		if aliveByGroup[g] == 0 && total > 0 {
			groupCorrupted = true
			errs = multierror.Append(errs, errors.Newf("dtx: redundancy group %d has no alive participant", g))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok = c.lookupLocked(id)
	if !ok {
		return ErrNotFound
	}

	switch {
	case anyAliveAborted:
		slot.Status = Aborted
		c.evictLocked(id, Aborted)
		return nil
	case allAlivePrepared && !groupCorrupted:
		slot.Status = Committable
		c.pending = append(c.pending, id)
		c.flushLocked(time.Now())
		return nil
	default:
		slot.Status = Corrupted
		return multierror.Append(errs, ErrCorrupted).ErrorOrNil()
	}
}

func groupIndex(m *Membership, participantIdx int) int {
	for gi, g := range m.RedundancyGroups {
		for _, idx := range g {
			if idx == participantIdx {
				return gi
			}
		}
	}
	return -1
}

func findView(views []ParticipantView, t Target) *ParticipantView {
	for i := range views {
		if views[i].Target == t {
			return &views[i]
		}
	}
	return nil
}

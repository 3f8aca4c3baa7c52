package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/vosdb/engine/lib/ilog"
)

// Kind tags an error with one of spec §7's fixed semantic error kinds,
// mirroring the teacher's store.RetCode pattern generalized from four
// codes to the full set this engine needs.
type Kind uint8

const (
	KindInvalidArgument Kind = iota
	KindNotFound
	KindExists
	KindNoMemory
	KindNoSpace
	KindBusy
	KindIO
	KindCorrupt
	KindTimedOut
	KindAgentIncompat
	KindHLCSync
	KindTxRestart
	KindTxBusy
	KindInProgress
	KindNoPermission
	KindOverflow
	KindTruncated
	KindNoHandle
	KindNoSystem
	KindDeprecated
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindExists:
		return "exists"
	case KindNoMemory:
		return "no_memory"
	case KindNoSpace:
		return "no_space"
	case KindBusy:
		return "busy"
	case KindIO:
		return "io"
	case KindCorrupt:
		return "corrupt"
	case KindTimedOut:
		return "timedout"
	case KindAgentIncompat:
		return "agent_incompat"
	case KindHLCSync:
		return "hlc_sync"
	case KindTxRestart:
		return "tx_restart"
	case KindTxBusy:
		return "tx_busy"
	case KindInProgress:
		return "in_progress"
	case KindNoPermission:
		return "no_permission"
	case KindOverflow:
		return "overflow"
	case KindTruncated:
		return "truncated"
	case KindNoHandle:
		return "no_handle"
	case KindNoSystem:
		return "no_system"
	case KindDeprecated:
		return "deprecated"
	default:
		return "unknown"
	}
}

// kindMarker is the sentinel errors.Mark target for a Kind; callers
// never see this type, only errors.Is(err, ErrXxx) or Kind(err).
type kindMarker struct{ kind Kind }

func (m kindMarker) Error() string { return m.kind.String() }

// Wrap marks err with kind so KindOf can recover it later, preserving
// err's message and stack via errors.Mark/errors.Wrap.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, msg)
	return errors.Mark(wrapped, kindMarker{kind})
}

// New creates a fresh error already tagged with kind.
func New(kind Kind, msg string) error {
	return errors.Mark(errors.New(msg), kindMarker{kind})
}

// KindOf recovers the Kind a Wrap/New call tagged err with, and false
// if err was never tagged (or is nil).
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	for _, k := range allKinds {
		if errors.Is(err, kindMarker{k}) {
			return k, true
		}
	}
	return 0, false
}

var allKinds = []Kind{
	KindInvalidArgument, KindNotFound, KindExists, KindNoMemory, KindNoSpace,
	KindBusy, KindIO, KindCorrupt, KindTimedOut, KindAgentIncompat, KindHLCSync,
	KindTxRestart, KindTxBusy, KindInProgress, KindNoPermission, KindOverflow,
	KindTruncated, KindNoHandle, KindNoSystem, KindDeprecated,
}

// ErrTxRestart is the engine-wide retry signal (spec §7: "tx_restart is
// never logged as an error; it is the contract signalling the caller
// to re-issue the transaction with a fresh epoch"). It is the same
// sentinel lib/ilog already returns on an epoch-ordering violation —
// engine code checks it with errors.Is(err, engine.ErrTxRestart) the
// same way lib/object and lib/dtx do with ilog.ErrTxRestart directly.
var ErrTxRestart = ilog.ErrTxRestart

var (
	ErrInvalidArgument = New(KindInvalidArgument, "invalid argument")
	ErrNotFound        = New(KindNotFound, "not found")
	ErrExists          = New(KindExists, "already exists")
	ErrNoMemory        = New(KindNoMemory, "out of memory")
	ErrNoSpace         = New(KindNoSpace, "no space left on device")
	ErrBusy            = New(KindBusy, "resource busy")
	ErrIO              = New(KindIO, "i/o error")
	ErrCorrupt         = New(KindCorrupt, "data corruption detected")
	ErrTimedOut        = New(KindTimedOut, "operation timed out")
	ErrAgentIncompat   = New(KindAgentIncompat, "incompatible agent version")
	ErrHLCSync         = New(KindHLCSync, "hlc clock out of sync")
	ErrTxBusy          = New(KindTxBusy, "transaction table full")
	ErrInProgress      = New(KindInProgress, "operation already in progress")
	ErrNoPermission    = New(KindNoPermission, "permission denied")
	ErrOverflow        = New(KindOverflow, "value overflow")
	ErrTruncated       = New(KindTruncated, "truncated read")
	ErrNoHandle        = New(KindNoHandle, "invalid handle")
	ErrNoSystem        = New(KindNoSystem, "system not initialized")
	ErrDeprecated      = New(KindDeprecated, "deprecated operation")
)

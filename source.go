package gsk

import (
	"sync/atomic"
	"time"
)

// SourceKind identifies what kind of event wakes a Source.
type SourceKind uint8

const (
	SourceIdle SourceKind = iota
	SourceTimer
	SourceIO
	SourceSignal
	SourceProcess

	sourceKindCount // sentinel, not a valid kind
)

// String returns a short lowercase name for the kind, e.g. for logging.
func (k SourceKind) String() string {
	switch k {
	case SourceIdle:
		return "idle"
	case SourceTimer:
		return "timer"
	case SourceIO:
		return "io"
	case SourceSignal:
		return "signal"
	case SourceProcess:
		return "process"
	default:
		return "unknown"
	}
}

// sourceState tracks a Source through its run-to-completion lifecycle.
type sourceState uint8

const (
	sourceLive sourceState = iota
	sourceRunningClean
	sourceRunningMarkedForRemoval
	sourceDestroyed
)

// IOEvents is a bitmask of readiness conditions a Backend reports or an I/O
// source subscribes to.
type IOEvents uint8

const (
	IORead IOEvents = 1 << iota
	IOWrite
	IOError // HUP/ERR folded in by the backend; advisory only, never masked out
)

// TimerEvent is delivered to a timer Source's callback.
type TimerEvent struct {
	// LateBy is how far past the scheduled expiry the callback actually ran.
	LateBy time.Duration
}

// IOEvent is delivered to an I/O Source's callback. Err is non-nil exactly
// when Events has IOError set: a *FDError wrapping whatever the backend
// could tell us about the condition (often nothing beyond the flag itself).
type IOEvent struct {
	FD     int
	Events IOEvents
	Err    error
}

// SignalEvent is delivered to a signal Source's callback.
type SignalEvent struct {
	Signum int
}

// ProcessEvent is delivered to a process (waitpid) Source's callback.
type ProcessEvent struct {
	PID    int
	Exited bool
	Status int
	Dumped bool
}

// Source is one registration in a Reactor: an idle task, a timer, a watched
// file descriptor direction, a signal subscription, or a child-process wait.
// Its lifecycle is identical regardless of kind:
//
//	Live -> RunningClean -> Live            (callback returned true: keep)
//	Live -> RunningMarkedForRemoval -> Destroyed  (callback returned false, or
//	                                                Remove() called mid-run)
//
// Remove() is safe to call from within the source's own callback (it sets
// mustRemove and the reactor honors it once the callback returns) or from
// another source's callback in the same iteration (reentrant).
type Source struct {
	id    int64
	kind  SourceKind
	owner *Reactor

	state      sourceState
	runCount   int // >0 while the callback is executing (supports reentrant Remove)
	mustRemove bool

	userData  any
	onDestroy func(any)

	// idle: intrusive doubly-linked list node.
	idlePrev, idleNext *Source
	idleFunc           func(any) bool

	// timer: embedded tree node plus rearm policy.
	timer            timerNode
	timerPeriod      time.Duration // <0: one-shot
	timerFunc        func(TimerEvent) bool
	adjustedInRun    bool // AdjustTimer called while running suppresses auto-rearm

	// io: which fd/direction, and the registered event mask.
	fd       int
	ioDir    IOEvents // IORead or IOWrite, the single direction this Source owns
	ioMask   IOEvents
	ioFunc   func(IOEvent) bool

	// signal: intrusive chain node plus the subscribed signal number.
	sigPrev, sigNext *Source
	signum           int
	sigFunc          func(SignalEvent) bool

	// process: intrusive chain node plus the awaited pid.
	procPrev, procNext *Source
	pid                int
	procFunc           func(ProcessEvent) bool
}

// SourceHandle is the public handle returned by the Add* constructors. It
// wraps *Source so lifecycle operations (Remove, Adjust*) have a stable,
// exported entry point independent of the kind-specific internal fields.
type SourceHandle struct {
	src *Source
}

// Remove tears the source down. If called while its callback is executing
// (including from within the callback itself), it only marks the source for
// removal; the reactor destroys it once the callback returns. Removing an
// already-destroyed source returns ErrSourceDestroyed.
func (h *SourceHandle) Remove() error {
	s := h.src
	if s.state == sourceDestroyed {
		return ErrSourceDestroyed
	}
	s.mustRemove = true
	if s.runCount > 0 {
		s.state = sourceRunningMarkedForRemoval
		return nil
	}
	s.owner.destroySource(s)
	return nil
}

// AdjustTimer rearms a timer source with a new delay and period, without
// waiting for it to fire first. period < 0 makes it one-shot. Valid only on
// timer sources.
func (h *SourceHandle) AdjustTimer(delay, period time.Duration) error {
	s := h.src
	if s.kind != SourceTimer {
		return ErrFDNotRegistered
	}
	if s.state == sourceDestroyed {
		return ErrSourceDestroyed
	}
	s.timerPeriod = period
	if s.runCount > 0 {
		s.adjustedInRun = true
	}
	s.owner.rearmTimer(s, s.owner.clock.Now().Add(delay))
	return nil
}

// AdjustIO replaces the subscribed event mask for an I/O source outright.
func (h *SourceHandle) AdjustIO(mask IOEvents) error {
	return h.src.owner.adjustIO(h.src, mask)
}

// AddIOEvents ORs additional events into an I/O source's mask.
func (h *SourceHandle) AddIOEvents(mask IOEvents) error {
	s := h.src
	return s.owner.adjustIO(s, s.ioMask|mask)
}

// RemoveIOEvents clears events from an I/O source's mask.
func (h *SourceHandle) RemoveIOEvents(mask IOEvents) error {
	s := h.src
	return s.owner.adjustIO(s, s.ioMask&^mask)
}

// SetUserData attaches arbitrary caller state to the source, retrievable
// from UserData and passed to the idle callback.
func (h *SourceHandle) SetUserData(v any) { h.src.userData = v }

// UserData returns the source's attached caller state.
func (h *SourceHandle) UserData() any { return h.src.userData }

// nextSourceID hands out small reactor-scoped identifiers for logging only;
// it is not used for ordering or identity (the timer tree uses its own
// monotonic sequence for that).
var nextSourceID atomic.Int64

func allocSourceID() int64 { return nextSourceID.Add(1) }

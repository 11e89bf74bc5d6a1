package gsk

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// timeMode selects how a Reactor's clock behaves.
type timeMode int

const (
	// timeModePlain delegates every Now() call to time.Now().
	timeModePlain timeMode = iota

	// timeModeAccelerated caches a monotonic anchor once per iteration and
	// extrapolates sub-iteration reads from a high-frequency tick source
	// instead of re-syscalling, until the next resync.
	timeModeAccelerated
)

// tickState is the accelerated clock's internal state machine.
type tickState int32

const (
	tickInit tickState = iota
	tickHasLastTick
	tickHasTickRate
	tickReady
	tickFallback
)

// clock is a reactor's time source. The zero value is not usable; construct
// with newClock.
//
// In plain mode it is a thin, always-correct wrapper over time.Now(). In
// accelerated mode it caches a time.Now() anchor once per Resync call (the
// reactor calls Resync once per iteration) and extrapolates intervening Now()
// calls from a cheap high-frequency counter, falling back to time.Now() if
// the counter proves unreliable (clock goes backward, or the platform has no
// usable fast counter).
type clock struct {
	mode timeMode

	anchorMu sync.RWMutex
	anchor   time.Time // wall/monotonic time as of the last Resync

	elapsed atomic.Int64 // ns offset from anchor, set by Resync in plain mode

	state      atomic.Int32 // tickState
	lastTick   int64        // CLOCK_MONOTONIC_RAW ns at last resync
	tickRateMu sync.Mutex
	tickRate   float64 // estimated ns of wall time per ns of tick source (~1.0)
}

// newClock constructs a clock in the given mode.
func newClock(mode timeMode) *clock {
	c := &clock{mode: mode}
	c.anchor = time.Now()
	return c
}

// Resync re-anchors the clock to the current wall-clock time. The reactor
// calls this once at the top of every iteration.
func (c *clock) Resync() {
	now := time.Now()

	c.anchorMu.Lock()
	prevAnchor := c.anchor
	c.anchor = now
	c.anchorMu.Unlock()
	c.elapsed.Store(0)

	if c.mode != timeModeAccelerated {
		return
	}

	tick, ok := cpuTicks()
	if !ok {
		c.state.Store(int32(tickFallback))
		return
	}

	switch tickState(c.state.Load()) {
	case tickInit:
		c.lastTick = tick
		c.state.Store(int32(tickHasLastTick))
	case tickHasLastTick, tickHasTickRate, tickReady:
		dt := tick - c.lastTick
		c.lastTick = tick
		if dt > 0 {
			wallDelta := now.Sub(prevAnchor)
			if wallDelta > 0 {
				c.tickRateMu.Lock()
				c.tickRate = float64(wallDelta) / float64(dt)
				c.tickRateMu.Unlock()
				c.state.Store(int32(tickReady))
			}
		}
	case tickFallback:
		c.lastTick = tick
		c.state.Store(int32(tickHasLastTick))
	}
}

// Now returns the clock's current idea of the time. It is monotonic within
// a single iteration (successive calls between Resyncs never go backward)
// and, in accelerated mode, cheaper than a raw time.Now() call once the
// tick-rate estimate is warm.
func (c *clock) Now() time.Time {
	c.anchorMu.RLock()
	anchor := c.anchor
	c.anchorMu.RUnlock()

	if c.mode != timeModeAccelerated || tickState(c.state.Load()) != tickReady {
		return time.Now()
	}

	tick, ok := cpuTicks()
	if !ok {
		return time.Now()
	}
	dt := tick - c.lastTick
	if dt < 0 {
		// Tick source went backward; this iteration falls back to wall time.
		return time.Now()
	}

	c.tickRateMu.Lock()
	rate := c.tickRate
	c.tickRateMu.Unlock()

	return anchor.Add(time.Duration(float64(dt) * rate))
}

// Anchor returns the wall-clock time as of the last Resync. Exposed for
// tests that need to pin the clock to a deterministic value.
func (c *clock) Anchor() time.Time {
	c.anchorMu.RLock()
	defer c.anchorMu.RUnlock()
	return c.anchor
}

// SetAnchor pins the clock's anchor, for deterministic tests.
func (c *clock) SetAnchor(t time.Time) {
	c.anchorMu.Lock()
	c.anchor = t
	c.anchorMu.Unlock()
	c.elapsed.Store(0)
	c.state.Store(int32(tickInit))
}

// cpuTicks samples a monotonic, high-frequency tick source. Go exposes no
// portable cycle counter (no inline RDTSC), so CLOCK_MONOTONIC_RAW stands in:
// it is unaffected by NTP slew, cheap relative to the vDSO-backed time.Now(),
// and available everywhere golang.org/x/sys/unix.ClockGettime is.
func cpuTicks() (int64, bool) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return 0, false
	}
	return ts.Nano(), true
}

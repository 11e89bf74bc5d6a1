package gsk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func runUntil(t *testing.T, r *Reactor, deadline time.Time, done func() bool) {
	t.Helper()
	for time.Now().Before(deadline) {
		_, _, err := r.Run(50)
		require.NoError(t, err)
		if done() {
			return
		}
	}
	t.Fatal("deadline exceeded waiting for condition")
}

// A one-shot timer fires exactly once, regardless of how many iterations
// elapse after it fires.
func TestTimerOneShotFiresOnce(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	var fired int
	_, err = r.AddTimer(10*time.Millisecond, -1, func(TimerEvent) bool {
		fired++
		return true // return value is ignored for a one-shot timer's re-arm
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	runUntil(t, r, deadline, func() bool { return fired > 0 })

	// Run a few more iterations; the count must not move past 1.
	for i := 0; i < 5; i++ {
		_, _, err := r.Run(10)
		require.NoError(t, err)
	}
	require.Equal(t, 1, fired)
}

// A periodic timer fires repeatedly until it is removed through its handle,
// the observed tick count over a bounded window lands in the expected
// range for the chosen period, and no tick fires after the removal.
func TestTimerPeriodicFiresWithinExpectedRange(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	const period = 20 * time.Millisecond
	const window = 210 * time.Millisecond

	var ticks int
	var handle *SourceHandle
	handle, err = r.AddTimer(period, period, func(TimerEvent) bool {
		ticks++
		return true
	})
	require.NoError(t, err)

	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		_, _, err := r.Run(5)
		require.NoError(t, err)
	}
	require.NoError(t, handle.Remove())

	// window/period == ~10.5 ticks; scheduling jitter makes an exact count
	// unreliable, but it should land well within a generous range.
	require.GreaterOrEqual(t, ticks, 5)
	require.LessOrEqual(t, ticks, 15)

	stable := ticks
	for i := 0; i < 5; i++ {
		_, _, err := r.Run(10)
		require.NoError(t, err)
	}
	require.Equal(t, stable, ticks)
}

// A timer that removes itself from within its own callback (self-removal)
// must not be double-freed or fire again.
func TestTimerSelfRemovalNoDoubleFree(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	var fired int
	var self *SourceHandle
	self, err = r.AddTimer(5*time.Millisecond, -1, func(TimerEvent) bool {
		fired++
		require.NoError(t, self.Remove())
		return true
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	runUntil(t, r, deadline, func() bool { return fired > 0 })

	for i := 0; i < 5; i++ {
		_, _, err := r.Run(10)
		require.NoError(t, err)
	}
	require.Equal(t, 1, fired)

	// A second Remove on the already-destroyed source must report
	// ErrSourceDestroyed rather than corrupting reactor state.
	require.ErrorIs(t, self.Remove(), ErrSourceDestroyed)
}

// Removing a sibling timer from within another timer's callback, in the
// same iteration, must prevent the removed sibling from ever firing.
func TestTimerSiblingRemovalPreventsFire(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	var victimFired bool
	victim, err := r.AddTimer(20*time.Millisecond, -1, func(TimerEvent) bool {
		victimFired = true
		return false
	})
	require.NoError(t, err)

	var killerFired bool
	_, err = r.AddTimer(5*time.Millisecond, -1, func(TimerEvent) bool {
		killerFired = true
		require.NoError(t, victim.Remove())
		return false
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	runUntil(t, r, deadline, func() bool { return killerFired })

	// Give the victim's original deadline plenty of time to have passed.
	for i := 0; i < 10; i++ {
		_, _, err := r.Run(10)
		require.NoError(t, err)
	}
	require.False(t, victimFired)
}

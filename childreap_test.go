package gsk

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Spawning a short-lived child process and subscribing to its exit via
// AddWaitPID(pid, ...) must deliver a ProcessEvent reporting the correct
// pid and exit status once the child reaper observes its termination.
func TestChildReapDeliversExitStatus(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	received := make(chan ProcessEvent, 1)
	_, err = r.AddWaitPID(pid, func(ev ProcessEvent) bool {
		received <- ev
		return false
	})
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := r.Run(100)
		require.NoError(t, err)
		select {
		case ev := <-received:
			require.Equal(t, pid, ev.PID)
			require.True(t, ev.Exited)
			require.Equal(t, 0, ev.Status)
			_ = cmd.Wait() // reap cmd's own Process handle bookkeeping
			return
		default:
		}
	}
	t.Fatal("child exit was never delivered")
}

// A non-zero exit status must be reported accurately.
func TestChildReapDeliversNonZeroExitStatus(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	cmd := exec.Command("false")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	received := make(chan ProcessEvent, 1)
	_, err = r.AddWaitPID(pid, func(ev ProcessEvent) bool {
		received <- ev
		return false
	})
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := r.Run(100)
		require.NoError(t, err)
		select {
		case ev := <-received:
			require.Equal(t, pid, ev.PID)
			require.True(t, ev.Exited)
			require.NotEqual(t, 0, ev.Status)
			_ = cmd.Wait()
			return
		default:
		}
	}
	t.Fatal("child exit was never delivered")
}

// AddWaitPID(-1, ...) subscribes to any child's termination, not just one
// specific pid.
func TestChildReapAnyPIDSubscription(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	received := make(chan ProcessEvent, 1)
	_, err = r.AddWaitPID(-1, func(ev ProcessEvent) bool {
		received <- ev
		return false
	})
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := r.Run(100)
		require.NoError(t, err)
		select {
		case ev := <-received:
			require.Equal(t, pid, ev.PID)
			_ = cmd.Wait()
			return
		default:
		}
	}
	t.Fatal("child exit was never delivered")
}

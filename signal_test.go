package gsk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Sending SIGUSR1 to the current process must wake a reactor subscribed to
// it and invoke its callback with the matching signal number.
func TestSignalDeliveryWakesReactor(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	received := make(chan int, 1)
	_, err = r.AddSignal(int(unix.SIGUSR1), func(ev SignalEvent) bool {
		received <- ev.Signum
		return true
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := r.Run(100)
		require.NoError(t, err)
		select {
		case signum := <-received:
			require.Equal(t, int(unix.SIGUSR1), signum)
			return
		default:
		}
	}
	t.Fatal("signal was never delivered")
}

// Two reactors subscribed to the same signal number must both observe a
// single delivery of it: signal.go's demux fans one os/signal.Notify
// channel out to every subscriber.
func TestSignalFansOutToMultipleReactors(t *testing.T) {
	r1, err := New()
	require.NoError(t, err)
	defer r1.Close()
	r2, err := New()
	require.NoError(t, err)
	defer r2.Close()

	got1 := make(chan struct{}, 1)
	got2 := make(chan struct{}, 1)
	_, err = r1.AddSignal(int(unix.SIGUSR2), func(SignalEvent) bool {
		got1 <- struct{}{}
		return true
	})
	require.NoError(t, err)
	_, err = r2.AddSignal(int(unix.SIGUSR2), func(SignalEvent) bool {
		got2 <- struct{}{}
		return true
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR2))
	}()

	deadline := time.Now().Add(2 * time.Second)
	var r1Done, r2Done bool
	for time.Now().Before(deadline) && (!r1Done || !r2Done) {
		if !r1Done {
			if _, _, err := r1.Run(50); err != nil {
				t.Fatal(err)
			}
		}
		if !r2Done {
			if _, _, err := r2.Run(50); err != nil {
				t.Fatal(err)
			}
		}
		select {
		case <-got1:
			r1Done = true
		default:
		}
		select {
		case <-got2:
			r2Done = true
		default:
		}
	}
	require.True(t, r1Done)
	require.True(t, r2Done)
}

// Removing a signal source must stop further callback invocations for
// subsequent deliveries of the same signal.
func TestSignalRemovalStopsDelivery(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	var count int
	handle, err := r.AddSignal(int(unix.SIGUSR1), func(SignalEvent) bool {
		count++
		return true
	})
	require.NoError(t, err)

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))
	deadline := time.Now().Add(2 * time.Second)
	runUntil(t, r, deadline, func() bool { return count > 0 })

	require.NoError(t, handle.Remove())

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))
	for i := 0; i < 10; i++ {
		_, _, err := r.Run(20)
		require.NoError(t, err)
	}
	require.Equal(t, 1, count)
}

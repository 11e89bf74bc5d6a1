package gsk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

// pipeExternalLoop embeds a foreign event source backed by a self-pipe: it
// watches its read end via Query/Check, exactly the GLib-style embedding
// ExternalLoop models (a GUI toolkit's message pump would watch its own
// socket the same way).
type pipeExternalLoop struct {
	readFD, writeFD int
	dispatched      int
}

func newPipeExternalLoop(t *testing.T) *pipeExternalLoop {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	l := &pipeExternalLoop{readFD: fds[0], writeFD: fds[1]}
	t.Cleanup(func() {
		unix.Close(l.readFD)
		unix.Close(l.writeFD)
	})
	return l
}

func (l *pipeExternalLoop) Prepare() bool { return false }

func (l *pipeExternalLoop) Query() ([]int, int) { return []int{l.readFD}, -1 }

func (l *pipeExternalLoop) Check(ready map[int]IOEvents) bool {
	return ready[l.readFD]&IORead != 0
}

func (l *pipeExternalLoop) Dispatch() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.readFD, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	l.dispatched++
}

// An embedded loop's own fd, injected via Query, must be registered as a
// transient I/O source for the wait: writing to it must cause Check to
// observe readiness and Dispatch to run, even though nothing ever called
// AddIO for that fd.
func TestExternalLoopFDInjectionWakesCheck(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	loop := newPipeExternalLoop(t)
	r.AddContext(loop)

	_, err = unix.Write(loop.writeFD, []byte{1})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := r.Run(50)
		require.NoError(t, err)
		if loop.dispatched > 0 {
			break
		}
	}
	require.Equal(t, 1, loop.dispatched)

	// The transient registration must be torn down after the iteration that
	// consumed it: further iterations with no new writes must not re-fire.
	for i := 0; i < 5; i++ {
		_, _, err := r.Run(10)
		require.NoError(t, err)
	}
	require.Equal(t, 1, loop.dispatched)
}

// An fd already owned by a real AddIO Source must not be clobbered by the
// external-loop injection path: both the Source's own callback and the
// embedded loop's Check must observe the same readiness.
func TestExternalLoopFDInjectionDoesNotClobberOwnedSource(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	loop := newPipeExternalLoop(t)
	r.AddContext(loop)

	var ioFired bool
	_, err = r.AddIO(loop.readFD, IORead, func(IOEvent) bool {
		ioFired = true
		var buf [64]byte
		for {
			n, err := unix.Read(loop.readFD, buf[:])
			if n <= 0 || err != nil {
				break
			}
		}
		return true
	})
	require.NoError(t, err)

	_, err = unix.Write(loop.writeFD, []byte{1})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := r.Run(50)
		require.NoError(t, err)
		if ioFired {
			break
		}
	}
	require.True(t, ioFired)
	require.Equal(t, 1, loop.dispatched)
}

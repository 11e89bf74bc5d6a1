//go:build !windows

package gsk

import (
	"golang.org/x/sys/unix"
)

// wakeupPipe lets any goroutine (another thread, the signal-demux consumer,
// the child reaper) interrupt a reactor blocked in Backend.Wait, without
// touching its source tables directly. The read end is registered with the
// reactor's own Backend as an ordinary I/O source; writes are coalesced by
// the reactor draining the pipe completely on each wake.
type wakeupPipe struct {
	readFD, writeFD int
}

func newWakeupPipe() (*wakeupPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, WrapError("pipe2", err)
	}
	return &wakeupPipe{readFD: fds[0], writeFD: fds[1]}, nil
}

// Wake posts a single byte, waking the reactor if it is currently blocked in
// Backend.Wait. Safe to call from any goroutine; EAGAIN (pipe buffer full --
// meaning a wake is already pending) is not an error.
func (w *wakeupPipe) Wake() error {
	_, err := unix.Write(w.writeFD, []byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Drain empties the pipe after a wake; the reactor calls this from
// dispatchIO in each iteration whose wait reported the pipe readable,
// before re-checking its wake-triggered state (new signals, reaped
// children, cross-goroutine submissions).
func (w *wakeupPipe) Drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.readFD, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *wakeupPipe) Close() error {
	err1 := unix.Close(w.readFD)
	err2 := unix.Close(w.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}

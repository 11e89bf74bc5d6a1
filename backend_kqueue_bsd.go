//go:build darwin || freebsd || netbsd || openbsd

package gsk

import (
	"golang.org/x/sys/unix"
)

// kqueueBackend implements Backend on the BSD family (including Darwin) via
// kqueue. Read and write readiness are independent filters (EVFILT_READ,
// EVFILT_WRITE), so ConfigureFD translates a single combined mask into up to
// two kevent changes.
type kqueueBackend struct {
	kq       int
	eventBuf []unix.Kevent_t
}

func newKqueueBackend() (Backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, WrapError("kqueue", err)
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{
		kq:       kq,
		eventBuf: make([]unix.Kevent_t, 64),
	}, nil
}

func (b *kqueueBackend) ConfigureFD(fd int, oldMask, newMask IOEvents) error {
	var changes []unix.Kevent_t

	changes = appendFilterChange(changes, fd, unix.EVFILT_READ, oldMask&IORead != 0, newMask&IORead != 0)
	changes = appendFilterChange(changes, fd, unix.EVFILT_WRITE, oldMask&IOWrite != 0, newMask&IOWrite != 0)

	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func appendFilterChange(changes []unix.Kevent_t, fd int, filter int16, was, want bool) []unix.Kevent_t {
	if was == want {
		return changes
	}
	var ev unix.Kevent_t
	ev.Ident = uint64(fd)
	ev.Filter = filter
	if want {
		ev.Flags = unix.EV_ADD | unix.EV_ENABLE
	} else {
		ev.Flags = unix.EV_DELETE
	}
	return append(changes, ev)
}

func (b *kqueueBackend) Wait(maxTimeoutMs int, events []BackendEvent) (int, error) {
	if cap(b.eventBuf) < len(events) {
		b.eventBuf = make([]unix.Kevent_t, len(events))
	}
	buf := b.eventBuf[:len(events)]

	var ts *unix.Timespec
	if maxTimeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(maxTimeoutMs) * int64(1e6))
		ts = &t
	}

	n, err := unix.Kevent(b.kq, nil, buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, WrapError("kevent", err)
	}

	merged := mergeKeventsByFD(buf[:n], events)
	return merged, nil
}

// mergeKeventsByFD folds separate read/write kevents for the same fd into a
// single BackendEvent, matching the combined-mask shape the rest of the
// reactor expects from Backend.Wait.
func mergeKeventsByFD(kevents []unix.Kevent_t, out []BackendEvent) int {
	n := 0
	for _, kev := range kevents {
		fd := int(kev.Ident)

		var mask IOEvents
		switch kev.Filter {
		case unix.EVFILT_READ:
			mask = IORead
		case unix.EVFILT_WRITE:
			mask = IOWrite
		}
		if kev.Flags&unix.EV_EOF != 0 || kev.Flags&unix.EV_ERROR != 0 {
			mask |= IOError | IORead | IOWrite
		}

		merged := false
		for i := 0; i < n; i++ {
			if out[i].FD == fd {
				out[i].Events |= mask
				merged = true
				break
			}
		}
		if !merged {
			out[n] = BackendEvent{FD: fd, Events: mask}
			n++
		}
	}
	return n
}

func (b *kqueueBackend) Close() error {
	return unix.Close(b.kq)
}

//go:build !windows

package gsk

import (
	"golang.org/x/sys/unix"
)

// pollBackend implements Backend via the portable poll(2) syscall. pollfd
// entries are kept densely packed in a slice; a removed entry's fd field is
// overwritten with -2-nextFree, threading a free list through the unused
// slots so ConfigureFD never has to scan the whole slice to find a spot to
// reuse, and ordinary fds (>= 0) are never confused with free-list links.
type pollBackend struct {
	fds      []unix.PollFd
	index    map[int]int // fd -> slot
	freeHead int         // -1: no free slot
}

func newPollBackend() (Backend, error) {
	return &pollBackend{
		index:    make(map[int]int),
		freeHead: -1,
	}, nil
}

func (b *pollBackend) ConfigureFD(fd int, oldMask, newMask IOEvents) error {
	slot, tracked := b.index[fd]

	if newMask == 0 {
		if !tracked {
			return nil
		}
		delete(b.index, fd)
		b.fds[slot].Fd = int32(-2 - b.freeHead)
		b.fds[slot].Events = 0
		b.freeHead = slot
		return nil
	}

	events := ioEventsToPoll(newMask)
	if tracked {
		b.fds[slot].Events = events
		return nil
	}

	if b.freeHead >= 0 {
		slot = b.freeHead
		b.freeHead = -2 - int(b.fds[slot].Fd)
		b.fds[slot] = unix.PollFd{Fd: int32(fd), Events: events}
	} else {
		slot = len(b.fds)
		b.fds = append(b.fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	b.index[fd] = slot
	return nil
}

func (b *pollBackend) Wait(maxTimeoutMs int, events []BackendEvent) (int, error) {
	// Compact: poll(2) has no way to skip a densely-threaded free slot other
	// than giving it fd < 0, which the kernel already ignores for us, so no
	// actual compaction pass is required before the syscall.
	n, err := unix.Poll(b.fds, maxTimeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, WrapError("poll", err)
	}
	if n == 0 {
		return 0, nil
	}

	count := 0
	for i := range b.fds {
		if count >= len(events) {
			break
		}
		pfd := &b.fds[i]
		if pfd.Fd < 0 || pfd.Revents == 0 {
			continue
		}
		events[count] = BackendEvent{FD: int(pfd.Fd), Events: pollToIOEvents(pfd.Revents)}
		pfd.Revents = 0
		count++
	}
	return count, nil
}

func (b *pollBackend) Close() error {
	return nil
}

//go:build !windows

package gsk

import (
	"sort"

	"golang.org/x/sys/unix"
)

// selectBackend implements Backend via the portable select(2) syscall. A
// sorted slice of active fds stands in for spec.md's "tree", bounding the
// O(maxfd) rebuild select(2) itself requires to the number of fds actually
// registered rather than the highest fd number in use.
type selectBackend struct {
	readMask, writeMask map[int]bool
	active              []int // sorted
}

func newSelectBackend() (Backend, error) {
	return &selectBackend{
		readMask:  make(map[int]bool),
		writeMask: make(map[int]bool),
	}, nil
}

func (b *selectBackend) ConfigureFD(fd int, oldMask, newMask IOEvents) error {
	wasActive := b.readMask[fd] || b.writeMask[fd]

	if newMask&IORead != 0 {
		b.readMask[fd] = true
	} else {
		delete(b.readMask, fd)
	}
	if newMask&IOWrite != 0 {
		b.writeMask[fd] = true
	} else {
		delete(b.writeMask, fd)
	}

	isActive := b.readMask[fd] || b.writeMask[fd]
	if isActive == wasActive {
		return nil
	}
	if isActive {
		b.insertActive(fd)
	} else {
		b.removeActive(fd)
	}
	return nil
}

func (b *selectBackend) insertActive(fd int) {
	i := sort.SearchInts(b.active, fd)
	b.active = append(b.active, 0)
	copy(b.active[i+1:], b.active[i:])
	b.active[i] = fd
}

func (b *selectBackend) removeActive(fd int) {
	i := sort.SearchInts(b.active, fd)
	if i < len(b.active) && b.active[i] == fd {
		b.active = append(b.active[:i], b.active[i+1:]...)
	}
}

func (b *selectBackend) Wait(maxTimeoutMs int, events []BackendEvent) (int, error) {
	if len(b.active) == 0 {
		// select(2) with all-empty sets still sleeps for the timeout, which
		// is exactly what an idle reactor with no I/O sources wants.
		return selectSleep(maxTimeoutMs)
	}

	var rfds, wfds unix.FdSet
	maxfd := 0
	for _, fd := range b.active {
		if b.readMask[fd] {
			fdSet(&rfds, fd)
		}
		if b.writeMask[fd] {
			fdSet(&wfds, fd)
		}
		if fd > maxfd {
			maxfd = fd
		}
	}

	var timeout *unix.Timeval
	if maxTimeoutMs >= 0 {
		tv := unix.NsecToTimeval(int64(maxTimeoutMs) * int64(1e6))
		timeout = &tv
	}

	n, err := unix.Select(maxfd+1, &rfds, &wfds, nil, timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, WrapError("select", err)
	}
	if n == 0 {
		return 0, nil
	}

	count := 0
	for _, fd := range b.active {
		if count >= len(events) {
			break
		}
		var mask IOEvents
		if fdIsSet(&rfds, fd) {
			mask |= IORead
		}
		if fdIsSet(&wfds, fd) {
			mask |= IOWrite
		}
		if mask != 0 {
			events[count] = BackendEvent{FD: fd, Events: mask}
			count++
		}
	}
	return count, nil
}

func (b *selectBackend) Close() error {
	return nil
}

// selectSleep blocks for maxTimeoutMs with no fds registered, by calling
// select(2) with empty fd sets. Negative means forever.
func selectSleep(maxTimeoutMs int) (int, error) {
	if maxTimeoutMs < 0 {
		// No fds and no timeout: nothing will ever wake this reactor via
		// the backend. Callers only reach this when the timer tree is also
		// empty, in which case spec.md treats it as "sleep forever" -- in
		// practice the wakeup pipe fd is always registered, so this branch
		// is unreachable outside of direct Backend unit tests.
		var rfds unix.FdSet
		_, err := unix.Select(0, &rfds, nil, nil, nil)
		if err != nil && err != unix.EINTR {
			return 0, WrapError("select", err)
		}
		return 0, nil
	}
	tv := unix.NsecToTimeval(int64(maxTimeoutMs) * int64(1e6))
	var rfds unix.FdSet
	_, err := unix.Select(0, &rfds, nil, nil, &tv)
	if err != nil && err != unix.EINTR {
		return 0, WrapError("select", err)
	}
	return 0, nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

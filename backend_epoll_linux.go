//go:build linux

package gsk

import (
	"golang.org/x/sys/unix"
)

// epollBackend implements Backend on Linux via epoll, level-triggered so a
// Source that only partially drains a readable/writable fd sees it ready
// again on the next iteration without re-arming.
type epollBackend struct {
	epfd     int
	eventBuf []unix.EpollEvent
}

func newEpollBackend() (Backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, WrapError("epoll_create1", err)
	}
	return &epollBackend{
		epfd:     fd,
		eventBuf: make([]unix.EpollEvent, 64),
	}, nil
}

func (b *epollBackend) ConfigureFD(fd int, oldMask, newMask IOEvents) error {
	switch {
	case oldMask == 0 && newMask != 0:
		ev := unix.EpollEvent{Events: ioEventsToEpoll(newMask), Fd: int32(fd)}
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	case oldMask != 0 && newMask == 0:
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	case oldMask != newMask:
		ev := unix.EpollEvent{Events: ioEventsToEpoll(newMask), Fd: int32(fd)}
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	default:
		return nil
	}
}

func (b *epollBackend) Wait(maxTimeoutMs int, events []BackendEvent) (int, error) {
	if cap(b.eventBuf) < len(events) {
		b.eventBuf = make([]unix.EpollEvent, len(events))
	}
	buf := b.eventBuf[:len(events)]

	n, err := unix.EpollWait(b.epfd, buf, maxTimeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, WrapError("epoll_wait", err)
	}

	for i := 0; i < n; i++ {
		events[i] = BackendEvent{
			FD:     int(buf[i].Fd),
			Events: epollToIOEvents(buf[i].Events),
		}
	}
	return n, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}

func ioEventsToEpoll(mask IOEvents) uint32 {
	var out uint32
	if mask&IORead != 0 {
		out |= unix.EPOLLIN
	}
	if mask&IOWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToIOEvents(raw uint32) IOEvents {
	var out IOEvents
	if raw&unix.EPOLLIN != 0 {
		out |= IORead
	}
	if raw&unix.EPOLLOUT != 0 {
		out |= IOWrite
	}
	if raw&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		// Fold into both directions so whichever callback is registered
		// observes the error instead of hanging forever on a dead fd.
		out |= IOError | IORead | IOWrite
	}
	return out
}

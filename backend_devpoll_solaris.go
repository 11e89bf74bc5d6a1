//go:build solaris

package gsk

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// devpollBackend implements Backend on Solaris/illumos via /dev/poll: fd
// interest is registered by writing pollfd structs to the device, and
// DP_POLL retrieves ready events.
type devpollBackend struct {
	f        *os.File
	eventBuf []unix.PollFd
}

func newDevPollBackend() (Backend, error) {
	f, err := os.OpenFile("/dev/poll", os.O_RDWR, 0)
	if err != nil {
		return nil, WrapError("open /dev/poll", err)
	}
	return &devpollBackend{
		f:        f,
		eventBuf: make([]unix.PollFd, 64),
	}, nil
}

func (b *devpollBackend) ConfigureFD(fd int, oldMask, newMask IOEvents) error {
	if oldMask != 0 {
		// /dev/poll has no update-in-place; remove then re-add.
		pfd := unix.PollFd{Fd: int32(fd), Events: int16(unix.POLLREMOVE)}
		if _, err := b.f.Write(pollFdBytes(&pfd)); err != nil {
			return err
		}
	}
	if newMask == 0 {
		return nil
	}
	pfd := unix.PollFd{Fd: int32(fd), Events: ioEventsToPoll(newMask)}
	_, err := b.f.Write(pollFdBytes(&pfd))
	return err
}

func pollFdBytes(pfd *unix.PollFd) []byte {
	return (*[unsafe.Sizeof(unix.PollFd{})]byte)(unsafe.Pointer(pfd))[:]
}

func (b *devpollBackend) Wait(maxTimeoutMs int, events []BackendEvent) (int, error) {
	if cap(b.eventBuf) < len(events) {
		b.eventBuf = make([]unix.PollFd, len(events))
	}
	buf := b.eventBuf[:len(events)]

	dp := dvPoll{
		fds:     uintptr(unsafe.Pointer(&buf[0])),
		nfds:    int32(len(buf)),
		timeout: int32(maxTimeoutMs),
	}

	n, err := devPollIoctl(b.f.Fd(), &dp)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, WrapError("DP_POLL", err)
	}

	for i := 0; i < n; i++ {
		events[i] = BackendEvent{
			FD:     int(buf[i].Fd),
			Events: pollToIOEvents(buf[i].Revents),
		}
	}
	return n, nil
}

func (b *devpollBackend) Close() error {
	return b.f.Close()
}

// dvPoll mirrors struct dvpoll from <sys/devpoll.h>.
type dvPoll struct {
	fds     uintptr
	nfds    int32
	timeout int32
}

const dpPoll = 0xD001 // DP_POLL ioctl request, per <sys/devpoll.h>

func devPollIoctl(fd uintptr, dp *dvPoll) (int, error) {
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, dpPoll, uintptr(unsafe.Pointer(dp)))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

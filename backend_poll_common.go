//go:build !windows

package gsk

import "golang.org/x/sys/unix"

// ioEventsToPoll and pollToIOEvents are shared by the poll(2) and /dev/poll
// backends, both of which speak the POSIX pollfd event bits.

func ioEventsToPoll(mask IOEvents) int16 {
	var out int16
	if mask&IORead != 0 {
		out |= unix.POLLIN
	}
	if mask&IOWrite != 0 {
		out |= unix.POLLOUT
	}
	return out
}

func pollToIOEvents(raw int16) IOEvents {
	var out IOEvents
	if raw&unix.POLLIN != 0 {
		out |= IORead
	}
	if raw&unix.POLLOUT != 0 {
		out |= IOWrite
	}
	if raw&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		out |= IOError | IORead | IOWrite
	}
	return out
}

package gsk

// Backend is the OS-specific readiness multiplexer a Reactor drives. It owns
// only registration and blocking wait; dispatch (matching a ready fd back to
// its Source and invoking the callback) lives in the Source Registry, so
// swapping Backend implementations never touches reactor bookkeeping.
type Backend interface {
	// ConfigureFD updates the backend's registration for fd from oldMask to
	// newMask (either may be zero: zero newMask removes the registration,
	// zero oldMask with nonzero newMask adds it).
	ConfigureFD(fd int, oldMask, newMask IOEvents) error

	// Wait blocks for readiness up to maxTimeoutMs (negative: forever, zero:
	// non-blocking poll), filling events and returning how many were
	// written. An interrupted wait (EINTR) returns (0, nil), not an error.
	Wait(maxTimeoutMs int, events []BackendEvent) (int, error)

	// Close releases the backend's OS resources (epoll/kqueue/devpoll fd).
	Close() error
}

// BackendEvent is one readiness notification from Backend.Wait.
type BackendEvent struct {
	FD     int
	Events IOEvents
}

// backendName values accepted by WithBackend and GSK_MAIN_LOOP_TYPE.
const (
	backendNameEpoll   = "epoll"
	backendNameKqueue  = "kqueue"
	backendNameDevPoll = "devpoll"
	backendNamePoll    = "poll"
	backendNameSelect  = "select"
)

// Package gsk provides a single-threaded, cooperative event reactor: a
// pluggable-backend readiness loop (epoll/kqueue/devpoll/poll/select) unifying
// file descriptor I/O, timers, idle tasks, POSIX signals, and child-process
// reaping behind one re-entrancy-safe source lifetime protocol.
//
// # Architecture
//
// A [Reactor] owns a set of [Source] registrations (idle, timer, I/O, signal,
// process) and drives them through a single [Backend] (the OS-specific
// readiness multiplexer) plus a red-black timer tree ordering pending
// timers by expiry. Cross-thread and cross-signal wakeups are carried by a
// per-reactor pipe; POSIX signals and reaped children are demultiplexed by
// process-wide tables (see signal.go, childreap.go) and routed to whichever
// reactors subscribed to them.
//
// Two further subsystems are exposed as independent packages: gsk/sorter,
// an external merge sorter with bounded RAM and spilled runs whose run-file
// I/O is built on [Buffer], and gsk/streamqueue, a backpressured
// composition of readable/writable sub-streams. Neither depends on reactor internals;
// the stream queue is simply an ordinary consumer of reactor I/O sources.
//
// # Platform support
//
// Backends are selected per OS, with a Linux epoll implementation, a
// kqueue implementation for the BSD family (including Darwin), a
// /dev/poll implementation for Solaris, and portable poll(2)/select(2)
// fallbacks for everything else. GSK_MAIN_LOOP_TYPE overrides the
// autodetected choice; see backend_select.go.
//
// # Thread model
//
// Each Reactor is single-threaded by contract: sources run to completion on
// the reactor's own goroutine and must not block. The sole suspension point
// is Backend.Wait. Any other goroutine, or the signal-demux goroutine, may
// wake a sleeping reactor via its wakeup pipe, but must never otherwise
// touch its source tables.
//
// # Usage
//
//	r, err := gsk.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	r.AddTimer(100*time.Millisecond, -1, func(gsk.TimerEvent) bool {
//	    fmt.Println("fired once after 100ms")
//	    return false
//	})
//
//	if _, _, err := r.Run(1000); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error kinds
//
// Errors are conceptual rather than a single taxonomy, matching the ways
// each subsystem can fail:
//   - [ErrConfigInvalidBackend]: backend construction/selection failure.
//   - [FDError]: I/O error on a watched descriptor; the callback observes it.
//   - [ErrReactorClosed], [ErrSourceDestroyed], [ErrReentrantRun]: lifecycle misuse.
//   - sorter.SorterIOError: fatal spill/merge failure, aborts that sort only.
//   - streamqueue.StreamQueueError: a substream error or a premature-shutdown
//     report.
package gsk

package gsk

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// childreap.go implements child-process reaping: one global SIGCHLD
// consumer goroutine, installed lazily on the first AddWaitPID call across
// all reactors, drains every reaped child with a non-blocking waitpid(-1)
// loop and routes each termination record to whichever reactors are
// awaiting that pid. Its subscriber table is guarded by its own mutex,
// childReap.mu, not by signal.go's demux mutex: the two process-wide
// tables have separate locks.
var childReap = struct {
	mu          sync.Mutex
	subscribers map[int][]*Reactor // pid -> interested reactors; -1 means "any"
	installed   bool
}{
	subscribers: make(map[int][]*Reactor),
}

// subscribeWaitPID registers r as interested in pid's termination (-1: any
// child), installing the SIGCHLD consumer on first use.
func subscribeWaitPID(pid int, r *Reactor) {
	childReap.mu.Lock()
	defer childReap.mu.Unlock()

	childReap.subscribers[pid] = append(childReap.subscribers[pid], r)

	if childReap.installed {
		return
	}
	childReap.installed = true
	installChildReapConsumer()
}

// unsubscribeWaitPID removes r from pid's subscriber list.
func unsubscribeWaitPID(pid int, r *Reactor) {
	childReap.mu.Lock()
	defer childReap.mu.Unlock()

	subs := childReap.subscribers[pid]
	for i, sub := range subs {
		if sub == r {
			childReap.subscribers[pid] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// installChildReapConsumer starts the SIGCHLD-driven waitpid drain loop.
func installChildReapConsumer() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGCHLD)

	go func() {
		for range ch {
			drainReapedChildren()
		}
	}()
}

// drainReapedChildren calls waitpid(-1, WNOHANG) until no more children are
// immediately reapable, dispatching each termination record. EINTR is
// retried; any other error ends the drain for this wakeup and is logged --
// there is no single subscriber to attribute an ambiguous waitpid failure
// to, so GSK logs and drops rather than guessing.
func drainReapedChildren() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err != unix.ECHILD {
				logWaitPIDError(err)
			}
			return
		}
		if pid <= 0 {
			return
		}

		event := ProcessEvent{
			PID:    pid,
			Exited: status.Exited(),
			Status: status.ExitStatus(),
			Dumped: status.CoreDump(),
		}
		dispatchReapedChild(pid, event)
	}
}

// dispatchReapedChild enqueues event exactly once per interested reactor,
// even if that reactor subscribed via both AddWaitPID(pid, ...) and
// AddWaitPID(-1, ...): dispatchProcesses already walks both the specific-pid
// and the -1 chain for every queued copy of an event, so handing it a
// duplicate per reactor would double-invoke both chains.
func dispatchReapedChild(pid int, event ProcessEvent) {
	childReap.mu.Lock()
	seen := make(map[*Reactor]struct{}, len(childReap.subscribers[pid])+len(childReap.subscribers[-1]))
	var subs []*Reactor
	for _, r := range childReap.subscribers[pid] {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			subs = append(subs, r)
		}
	}
	for _, r := range childReap.subscribers[-1] {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			subs = append(subs, r)
		}
	}
	childReap.mu.Unlock()

	for _, r := range subs {
		r.enqueueProcess(event)
	}
}

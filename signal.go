package gsk

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// signal.go implements process-wide signal demultiplexing: every reactor
// subscribing to a signal shares one os/signal.Notify channel per signal
// number and one consumer goroutine, matching spec.md's small-fixed-width-
// integer pipe-write design while staying within what portable Go (no cgo,
// no raw signal-handler installation) can express.
//
// True async-signal-safety -- a handler body literally running on the
// signal stack, as the original design assumes -- is not expressible from
// pure Go. The Go runtime's own signal.Notify delivery already does the
// async-signal-safe work (queuing the signal number, waking a consumer
// goroutine) for us; this file's job is only to fan that delivery out to
// the subscribing reactors, preserving the fixed-width-int enqueue
// semantics spec.md specifies.
var signalDemux = struct {
	mu          sync.Mutex
	subscribers map[int][]*Reactor // signum -> interested reactors
	installed   map[int]bool
}{
	subscribers: make(map[int][]*Reactor),
	installed:   make(map[int]bool),
}

// subscribeSignal registers r as interested in signum, installing the
// os/signal.Notify consumer for that signal number on first subscription.
func subscribeSignal(signum int, r *Reactor) {
	signalDemux.mu.Lock()
	defer signalDemux.mu.Unlock()

	signalDemux.subscribers[signum] = append(signalDemux.subscribers[signum], r)

	if signalDemux.installed[signum] {
		return
	}
	signalDemux.installed[signum] = true
	installSignalConsumer(signum)
}

// unsubscribeSignal removes r from signum's subscriber list. The
// signal.Notify consumer, once installed, keeps running for the life of the
// process: there is no safe point to call signal.Stop without racing a
// concurrent AddSignal on another reactor for the same signum.
func unsubscribeSignal(signum int, r *Reactor) {
	signalDemux.mu.Lock()
	defer signalDemux.mu.Unlock()

	subs := signalDemux.subscribers[signum]
	for i, sub := range subs {
		if sub == r {
			signalDemux.subscribers[signum] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// installSignalConsumer starts the goroutine that fans one signal number out
// to every subscribed reactor's per-reactor signal buffer, then wakes each.
func installSignalConsumer(signum int) {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.Signal(signum))

	go func() {
		for range ch {
			signalDemux.mu.Lock()
			subs := append([]*Reactor(nil), signalDemux.subscribers[signum]...)
			signalDemux.mu.Unlock()

			for _, r := range subs {
				if err := r.enqueueSignal(signum); err != nil {
					logSignalWriteError(signum, err)
				}
			}
		}
	}()
}

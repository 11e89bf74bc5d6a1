package gsk

import (
	"runtime"
	"sync"
	"time"
)

// Reactor is a single-threaded, cooperative event reactor. All of its
// exported Add*/Remove operations, and Run itself, must be called from
// exactly one goroutine for the lifetime of the reactor, and so must Close;
// the only thread-safe entry point from other goroutines is the wakeup path
// (signal/child-process delivery, which comes in via enqueueSignal and
// enqueueProcess).
type Reactor struct {
	id int64

	backend Backend
	wake    *wakeupPipe
	clock   *clock
	logger  Logger

	metrics        *Metrics
	metricsEnabled bool
	tps            *TPSCounter

	timers timerTree

	idleHead, idleTail *Source
	idleCount          int

	fdSources map[int]*fdEntry

	signalHead map[int]*Source // signum -> head of subscriber chain
	signalBuf  struct {
		mu   sync.Mutex
		pend []int
	}
	signalCount    int
	pendingSignals []int

	processHead map[int]*Source // pid (-1: any) -> head of subscriber chain
	processBuf  struct {
		mu   sync.Mutex
		pend []ProcessEvent
	}
	processCount     int
	pendingProcesses []ProcessEvent

	external             []ExternalLoop
	externalWatchFDs     []int // fds any embedded loop asked to watch, this iteration
	externalTransientFDs []int // subset of the above this iteration registered on the backend

	closed       bool
	runningOnGor uint64 // goroutine ID Run() is executing on; 0 when idle

	eventBuf []BackendEvent
	now      time.Time
}

// fdEntry tracks the Source(s) registered for one file descriptor: up to one
// per direction, since a single Source always owns exactly one direction.
type fdEntry struct {
	read, write *Source
	mask        IOEvents // combined mask currently given to the backend
}

// New constructs a Reactor. By default the backend is chosen from
// GSK_MAIN_LOOP_TYPE or the platform's autoconf list; see WithBackend.
func New(opts ...ReactorOption) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	backend, err := chooseBackend(cfg.backendName)
	if err != nil {
		return nil, err
	}

	wake, err := newWakeupPipe()
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = getGlobalLogger()
	}

	clockMode := timeModePlain
	if cfg.acceleratedTime {
		clockMode = timeModeAccelerated
	}

	r := &Reactor{
		id:          allocSourceID(),
		backend:     backend,
		wake:        wake,
		clock:       newClock(clockMode),
		logger:      logger,
		fdSources:   make(map[int]*fdEntry),
		signalHead:  make(map[int]*Source),
		processHead: make(map[int]*Source),
		eventBuf:    make([]BackendEvent, 64),
	}
	if cfg.metricsEnabled {
		r.metrics = &Metrics{}
		r.metricsEnabled = true
		r.tps = NewTPSCounter(10*time.Second, time.Second)
	}
	r.signalBuf.pend = make([]int, 0, cfg.signalBufferLen)
	r.processBuf.pend = make([]ProcessEvent, 0, cfg.signalBufferLen)

	if err := r.backend.ConfigureFD(r.wake.readFD, 0, IORead); err != nil {
		_ = wake.Close()
		_ = backend.Close()
		return nil, WrapError("register wakeup pipe", err)
	}
	r.fdSources[r.wake.readFD] = &fdEntry{mask: IORead} // no Source: drained inline by dispatchIO

	return r, nil
}

// Metrics returns the reactor's runtime statistics, or nil if constructed
// without WithMetrics(true).
func (r *Reactor) Metrics() *Metrics { return r.metrics }

// Close releases the reactor's backend and wakeup-pipe file descriptors. It
// does not run any pending source's destroy hook; callers that need that
// should Remove each source first.
func (r *Reactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err1 := r.backend.Close()
	err2 := r.wake.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

var defaultReactors = struct {
	mu sync.Mutex
	m  map[uint64]*Reactor
}{m: make(map[uint64]*Reactor)}

// DefaultReactor returns (creating if necessary) the reactor bound to the
// calling goroutine: each distinct goroutine that calls DefaultReactor gets
// its own reactor instance. Pass WithSingleThreaded(true) to instead force
// one process-wide reactor shared by every caller regardless of goroutine.
func DefaultReactor(opts ...ReactorOption) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	var key uint64
	if !cfg.singleThreaded {
		key = getGoroutineID()
	}

	defaultReactors.mu.Lock()
	defer defaultReactors.mu.Unlock()

	if r, ok := defaultReactors.m[key]; ok {
		return r, nil
	}
	r, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defaultReactors.m[key] = r
	return r, nil
}

// getGoroutineID extracts the calling goroutine's runtime ID by parsing its
// stack trace header ("goroutine NNN ["). Used only to key DefaultReactor;
// never for scheduling decisions.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// OnFork is a contract hook for callers that wrap fork/exec behavior (via
// cgo or os/exec) around a process that owns reactors: it is not invoked by
// this package, since pure Go offers no portable pre-fork callback. A
// caller whose embedding environment does support a fork hook may call
// this in the child immediately post-fork, before touching any reactor.
// The method does nothing: it does not close, discard or replace any
// inherited backend or wakeup-pipe descriptor, so a forking caller handles
// those descriptors itself.
func (r *Reactor) OnFork() {
	// Deliberately a no-op body: see doc comment. Kept as a named method so
	// a forking caller has a single, documented place to call.
}

// AddIdle registers a Source whose callback runs once in every iteration,
// after the other ready work; while any idle source is registered, Run's
// backend wait uses a zero timeout and never blocks.
// The callback's bool return follows every Source kind's convention: true
// keeps it registered, false removes it (destroy hook still fires).
func (r *Reactor) AddIdle(fn func(any) bool) (*SourceHandle, error) {
	if r.closed {
		return nil, ErrReactorClosed
	}
	s := &Source{id: allocSourceID(), kind: SourceIdle, owner: r, idleFunc: fn}
	r.idlePushBack(s)
	r.idleCount++
	if r.metricsEnabled {
		r.metrics.Depth.Update(SourceIdle, r.idleCount)
	}
	return &SourceHandle{src: s}, nil
}

func (r *Reactor) idlePushBack(s *Source) {
	if r.idleTail == nil {
		r.idleHead, r.idleTail = s, s
		return
	}
	s.idlePrev = r.idleTail
	r.idleTail.idleNext = s
	r.idleTail = s
}

func (r *Reactor) idleUnlink(s *Source) {
	if s.idlePrev != nil {
		s.idlePrev.idleNext = s.idleNext
	} else {
		r.idleHead = s.idleNext
	}
	if s.idleNext != nil {
		s.idleNext.idlePrev = s.idlePrev
	} else {
		r.idleTail = s.idlePrev
	}
	s.idlePrev, s.idleNext = nil, nil
	r.idleCount--
}

// AddTimer arms a timer Source that first fires after delay, then (if its
// callback returns true and AdjustTimer was not called during that run)
// re-arms every period. A negative period makes it one-shot.
func (r *Reactor) AddTimer(delay, period time.Duration, fn func(TimerEvent) bool) (*SourceHandle, error) {
	return r.AddTimerAbsolute(r.clock.Now().Add(delay), period, fn)
}

// AddTimerAbsolute arms a timer Source to first fire at the given absolute
// time, exactly as AddTimer but without the relative-delay computation.
func (r *Reactor) AddTimerAbsolute(when time.Time, period time.Duration, fn func(TimerEvent) bool) (*SourceHandle, error) {
	if r.closed {
		return nil, ErrReactorClosed
	}
	s := &Source{id: allocSourceID(), kind: SourceTimer, owner: r, timerPeriod: period, timerFunc: fn}
	s.timer.source = s
	r.rearmTimer(s, when)
	if r.metricsEnabled {
		r.metrics.Depth.Update(SourceTimer, r.timers.Len())
	}
	logTimerScheduled(r.id, s.id, when)
	return &SourceHandle{src: s}, nil
}

// rearmTimer (re)inserts s's timer node at the given expiry, removing it
// from the tree first if it was already pending.
func (r *Reactor) rearmTimer(s *Source, when time.Time) {
	if s.timer.inTree {
		r.timers.Remove(&s.timer)
	}
	s.timer.expireSec = when.Unix()
	s.timer.expireUsec = int64(when.Nanosecond() / 1000)
	s.timer.identity = r.timers.nextIdentity()
	r.timers.Insert(&s.timer)
}

// AddIO registers a Source watching fd for readiness in the given direction
// (IORead xor IOWrite; a single Source owns exactly one direction, matching
// spec.md -- watch both by calling AddIO twice). Calling it twice for the
// same (fd, direction) returns ErrFDAlreadyRegistered.
func (r *Reactor) AddIO(fd int, direction IOEvents, fn func(IOEvent) bool) (*SourceHandle, error) {
	if r.closed {
		return nil, ErrReactorClosed
	}
	entry, ok := r.fdSources[fd]
	if !ok {
		entry = &fdEntry{}
		r.fdSources[fd] = entry
	}
	if direction&IORead != 0 && entry.read != nil {
		return nil, ErrFDAlreadyRegistered
	}
	if direction&IOWrite != 0 && entry.write != nil {
		return nil, ErrFDAlreadyRegistered
	}

	s := &Source{id: allocSourceID(), kind: SourceIO, owner: r, fd: fd, ioDir: direction, ioMask: direction, ioFunc: fn}
	if direction&IORead != 0 {
		entry.read = s
	} else {
		entry.write = s
	}

	oldMask := entry.mask
	entry.mask |= direction
	if err := r.backend.ConfigureFD(fd, oldMask, entry.mask); err != nil {
		if direction&IORead != 0 {
			entry.read = nil
		} else {
			entry.write = nil
		}
		entry.mask = oldMask
		return nil, WrapError("configure fd", err)
	}
	return &SourceHandle{src: s}, nil
}

// adjustIO replaces the event mask an I/O source subscribes to, updating
// the shared fdEntry mask and the backend registration accordingly.
func (r *Reactor) adjustIO(s *Source, mask IOEvents) error {
	if s.state == sourceDestroyed {
		return ErrSourceDestroyed
	}
	entry, ok := r.fdSources[s.fd]
	if !ok {
		return ErrFDNotRegistered
	}
	oldCombined := entry.mask
	entry.mask = (entry.mask &^ s.ioMask) | mask
	s.ioMask = mask
	if entry.mask == oldCombined {
		return nil
	}
	return r.backend.ConfigureFD(s.fd, oldCombined, entry.mask)
}

// AddSignal subscribes to a POSIX signal; its callback runs once per
// delivered instance, on the reactor's own goroutine via the iteration
// loop, never on a signal-handling goroutine directly.
func (r *Reactor) AddSignal(signum int, fn func(SignalEvent) bool) (*SourceHandle, error) {
	if r.closed {
		return nil, ErrReactorClosed
	}
	s := &Source{id: allocSourceID(), kind: SourceSignal, owner: r, signum: signum, sigFunc: fn}
	r.sigPushFront(signum, s)
	r.signalCount++
	subscribeSignal(signum, r)
	if r.metricsEnabled {
		r.metrics.Depth.Update(SourceSignal, r.signalCount)
	}
	return &SourceHandle{src: s}, nil
}

func (r *Reactor) sigPushFront(signum int, s *Source) {
	head := r.signalHead[signum]
	s.sigNext = head
	if head != nil {
		head.sigPrev = s
	}
	r.signalHead[signum] = s
}

func (r *Reactor) sigUnlink(s *Source) {
	if s.sigPrev != nil {
		s.sigPrev.sigNext = s.sigNext
	} else {
		r.signalHead[s.signum] = s.sigNext
	}
	if s.sigNext != nil {
		s.sigNext.sigPrev = s.sigPrev
	}
	s.sigPrev, s.sigNext = nil, nil
	r.signalCount--
	if r.signalHead[s.signum] == nil {
		unsubscribeSignal(s.signum, r)
	}
}

// AddWaitPID subscribes to a child process's termination (-1: any child);
// its callback runs once on the reactor's own goroutine once the process
// reaper observes that pid exit.
func (r *Reactor) AddWaitPID(pid int, fn func(ProcessEvent) bool) (*SourceHandle, error) {
	if r.closed {
		return nil, ErrReactorClosed
	}
	s := &Source{id: allocSourceID(), kind: SourceProcess, owner: r, pid: pid, procFunc: fn}
	r.procPushFront(pid, s)
	r.processCount++
	subscribeWaitPID(pid, r)
	if r.metricsEnabled {
		r.metrics.Depth.Update(SourceProcess, r.processCount)
	}
	return &SourceHandle{src: s}, nil
}

func (r *Reactor) procPushFront(pid int, s *Source) {
	head := r.processHead[pid]
	s.procNext = head
	if head != nil {
		head.procPrev = s
	}
	r.processHead[pid] = s
}

func (r *Reactor) procUnlink(s *Source) {
	if s.procPrev != nil {
		s.procPrev.procNext = s.procNext
	} else {
		r.processHead[s.pid] = s.procNext
	}
	if s.procNext != nil {
		s.procNext.procPrev = s.procPrev
	}
	s.procPrev, s.procNext = nil, nil
	r.processCount--
	if r.processHead[s.pid] == nil {
		unsubscribeWaitPID(s.pid, r)
	}
}

// destroySource unlinks s from whichever table its kind lives in and fires
// its destroy hook exactly once.
func (r *Reactor) destroySource(s *Source) {
	if s.state == sourceDestroyed {
		return
	}
	switch s.kind {
	case SourceIdle:
		r.idleUnlink(s)
	case SourceTimer:
		if s.timer.inTree {
			r.timers.Remove(&s.timer)
		}
	case SourceIO:
		r.destroyIOSource(s)
	case SourceSignal:
		r.sigUnlink(s)
	case SourceProcess:
		r.procUnlink(s)
	}
	if r.metricsEnabled {
		switch s.kind {
		case SourceIdle:
			r.metrics.Depth.Update(SourceIdle, r.idleCount)
		case SourceTimer:
			r.metrics.Depth.Update(SourceTimer, r.timers.Len())
		case SourceSignal:
			r.metrics.Depth.Update(SourceSignal, r.signalCount)
		case SourceProcess:
			r.metrics.Depth.Update(SourceProcess, r.processCount)
		}
	}
	s.state = sourceDestroyed
	if s.onDestroy != nil {
		s.onDestroy(s.userData)
	}
}

// destroyIOSource clears the fd's backend registration for s's direction
// immediately, so a caller that closes the fd synchronously right after
// Remove() never races the backend against a dangling registration.
func (r *Reactor) destroyIOSource(s *Source) {
	entry, ok := r.fdSources[s.fd]
	if !ok {
		return
	}
	oldMask := entry.mask
	if s.ioDir&IORead != 0 {
		entry.read = nil
	} else {
		entry.write = nil
	}
	entry.mask &^= s.ioMask
	if entry.read == nil && entry.write == nil {
		delete(r.fdSources, s.fd)
	}
	if entry.mask != oldMask {
		_ = r.backend.ConfigureFD(s.fd, oldMask, entry.mask)
	}
}

// enqueueSignal is called from the signal-demux consumer goroutine (a
// different goroutine than Run()); it only appends under a lock and wakes
// the reactor, never touching source tables directly.
func (r *Reactor) enqueueSignal(signum int) error {
	r.signalBuf.mu.Lock()
	r.signalBuf.pend = append(r.signalBuf.pend, signum)
	r.signalBuf.mu.Unlock()
	return r.wake.Wake()
}

// enqueueProcess is called from the child-reaper consumer goroutine; same
// contract as enqueueSignal.
func (r *Reactor) enqueueProcess(event ProcessEvent) {
	r.processBuf.mu.Lock()
	r.processBuf.pend = append(r.processBuf.pend, event)
	r.processBuf.mu.Unlock()
	_ = r.wake.Wake()
}

// AddContext embeds a foreign event loop (e.g. a GUI toolkit's own message
// pump) into this reactor's wait, via the Prepare/Query/Check/Dispatch
// contract in externalloop.go.
func (r *Reactor) AddContext(loop ExternalLoop) {
	r.external = append(r.external, loop)
}

// Run executes one iteration of the reactor: compute a timeout from the
// nearest deadline (idle sources and overdue timers force it to zero),
// block in the backend for at most maxTimeoutMs, then dispatch everything
// that became ready, in the fixed order I/O -> signals -> process exits ->
// external loops -> idle -> timers. It returns the wall-clock time spent in
// this call and the number of source callbacks actually invoked.
//
// Run is not reentrant and not safe to call concurrently with itself, nor
// concurrently with any Add*/Remove call on the same reactor; callers that
// need cross-goroutine submission should have the other goroutine signal
// the reactor (e.g. via a self-pipe I/O source) rather than calling Run
// from two places at once.
func (r *Reactor) Run(maxTimeoutMs int) (elapsedMs int64, invoked int, err error) {
	if r.closed {
		return 0, 0, ErrReactorClosed
	}
	if r.runningOnGor != 0 {
		return 0, 0, ErrReentrantRun
	}
	r.runningOnGor = getGoroutineID()
	defer func() { r.runningOnGor = 0 }()

	r.clock.Resync()
	start := r.clock.Now()
	r.now = start

	timeout := maxTimeoutMs
	if r.idleHead != nil {
		timeout = 0
	}
	if min := r.timers.Min(); min != nil {
		deadline := time.Unix(min.expireSec, min.expireUsec*1000)
		if !deadline.After(r.now) {
			timeout = 0
		} else if d := msUntil(deadline.Sub(r.now)); timeout < 0 || d < timeout {
			timeout = d
		}
	}

	externalReady, externalTimeout := r.prepareExternalLoops()
	if externalReady {
		timeout = 0
	} else if externalTimeout >= 0 && (timeout < 0 || externalTimeout < timeout) {
		timeout = externalTimeout
	}

	n, waitErr := r.backend.Wait(timeout, r.eventBuf)
	r.teardownExternalFDs()
	r.now = r.clock.Now()
	if waitErr != nil {
		logBackendWaitError(r.id, waitErr, false)
		return int64(r.now.Sub(start) / time.Millisecond), 0, WrapError("backend wait", waitErr)
	}

	readyByFD := r.externalReadyByFD(r.eventBuf[:n])

	invoked += r.dispatchIO(r.eventBuf[:n])
	invoked += r.dispatchSignals()
	invoked += r.dispatchProcesses()

	r.dispatchExternalLoops(readyByFD)

	invoked += r.dispatchIdle()
	invoked += r.dispatchTimers()

	if n == len(r.eventBuf) {
		r.eventBuf = make([]BackendEvent, len(r.eventBuf)*2)
	}

	if r.metricsEnabled {
		r.tps.Increment()
		r.metrics.TPS = r.tps.TPS()
		r.metrics.Latency.Sample()
	}

	return int64(r.now.Sub(start) / time.Millisecond), invoked, nil
}

// dispatchIO delivers each ready fd's event to its read and/or write Source,
// draining the wakeup pipe inline (it has no Source of its own) instead of
// surfacing it to user code.
func (r *Reactor) dispatchIO(events []BackendEvent) (invoked int) {
	for _, ev := range events {
		if ev.FD == r.wake.readFD {
			r.wake.Drain()
			r.drainSignalBuf()
			r.drainProcessBuf()
			continue
		}

		entry, ok := r.fdSources[ev.FD]
		if !ok {
			continue
		}
		var ioErr error
		if ev.Events&IOError != 0 {
			ioErr = &FDError{FD: ev.FD, Events: ev.Events}
		}
		if entry.read != nil && ev.Events&(IORead|IOError) != 0 {
			r.runIO(entry.read, IOEvent{FD: ev.FD, Events: ev.Events, Err: ioErr})
			invoked++
		}
		if entry.write != nil && ev.Events&(IOWrite|IOError) != 0 {
			r.runIO(entry.write, IOEvent{FD: ev.FD, Events: ev.Events, Err: ioErr})
			invoked++
		}
	}
	return invoked
}

func (r *Reactor) runIO(s *Source, ev IOEvent) {
	start := r.latencyStart()
	beginRun(s)
	keep := s.ioFunc(ev)
	s.runCount--
	r.latencyEnd(start)
	r.finishRun(s, keep)
}

// latencyStart returns the current time if metrics are enabled, else the
// zero time (a zero-cost no-op path for the common case).
func (r *Reactor) latencyStart() time.Time {
	if !r.metricsEnabled {
		return time.Time{}
	}
	return r.clock.Now()
}

func (r *Reactor) latencyEnd(start time.Time) {
	if !r.metricsEnabled || start.IsZero() {
		return
	}
	r.metrics.Latency.Record(r.clock.Now().Sub(start))
}

// drainSignalBuf moves every signal number queued by the demux consumer
// into the signal-source dispatch path; called once per wake, before
// dispatchSignals walks the per-signum subscriber chains.
func (r *Reactor) drainSignalBuf() {
	r.signalBuf.mu.Lock()
	pending := r.signalBuf.pend
	r.signalBuf.pend = nil
	r.signalBuf.mu.Unlock()
	r.pendingSignals = append(r.pendingSignals, pending...)
}

func (r *Reactor) drainProcessBuf() {
	r.processBuf.mu.Lock()
	pending := r.processBuf.pend
	r.processBuf.pend = nil
	r.processBuf.mu.Unlock()
	r.pendingProcesses = append(r.pendingProcesses, pending...)
}

// dispatchSignals walks each pending signal's subscriber chain, using the
// pre-increment-next-before-invoking-current technique so a subscriber that
// removes itself or a sibling mid-walk cannot corrupt the chain.
func (r *Reactor) dispatchSignals() (invoked int) {
	pending := r.pendingSignals
	r.pendingSignals = nil
	for _, signum := range pending {
		s := r.signalHead[signum]
		for s != nil {
			next := s.sigNext
			start := r.latencyStart()
			beginRun(s)
			keep := s.sigFunc(SignalEvent{Signum: signum})
			s.runCount--
			r.latencyEnd(start)
			r.finishRun(s, keep)
			invoked++
			s = next
		}
	}
	return invoked
}

// dispatchProcesses walks every pending termination record's subscriber
// chain. Process sources are one-shot: each delivery marks the source for
// removal regardless of its callback's return value.
func (r *Reactor) dispatchProcesses() (invoked int) {
	pending := r.pendingProcesses
	r.pendingProcesses = nil
	for _, event := range pending {
		invoked += r.dispatchOneProcess(event.PID, event)
		invoked += r.dispatchOneProcess(-1, event)
	}
	return invoked
}

func (r *Reactor) dispatchOneProcess(key int, event ProcessEvent) (invoked int) {
	s := r.processHead[key]
	for s != nil {
		next := s.procNext
		start := r.latencyStart()
		beginRun(s)
		s.procFunc(event)
		s.runCount--
		r.latencyEnd(start)
		r.finishRun(s, false)
		invoked++
		s = next
	}
	return invoked
}

// dispatchIdle runs every idle source once, in registration order, using
// the same pre-increment-next technique as signals/process.
func (r *Reactor) dispatchIdle() (invoked int) {
	s := r.idleHead
	for s != nil {
		next := s.idleNext
		start := r.latencyStart()
		beginRun(s)
		keep := s.idleFunc(s.userData)
		s.runCount--
		r.latencyEnd(start)
		r.finishRun(s, keep)
		invoked++
		s = next
	}
	return invoked
}

// dispatchTimers expires every timer whose deadline has passed, invoking
// each callback and either re-arming it (period >= 0, and AdjustTimer was
// not called during the run) or marking it for removal.
func (r *Reactor) dispatchTimers() (invoked int) {
	for {
		min := r.timers.Min()
		if min == nil {
			return invoked
		}
		deadline := time.Unix(min.expireSec, min.expireUsec*1000)
		if deadline.After(r.now) {
			return invoked
		}

		s := min.source
		r.timers.Remove(min)
		lateBy := r.now.Sub(deadline)
		logTimerFired(r.id, s.id, lateBy)

		start := r.latencyStart()
		beginRun(s)
		s.adjustedInRun = false
		keep := s.timerFunc(TimerEvent{LateBy: lateBy})
		s.runCount--
		r.latencyEnd(start)
		invoked++

		if s.mustRemove || !keep {
			r.finishRun(s, false)
			continue
		}
		if s.adjustedInRun {
			// AdjustTimer already re-inserted the node with its own deadline.
			continue
		}
		if s.timerPeriod < 0 {
			r.finishRun(s, false)
			continue
		}
		r.rearmTimer(s, deadline.Add(s.timerPeriod))
	}
}

// beginRun marks a source Live -> RunningClean on its outermost invocation;
// a reentrant call (the callback removing or re-triggering itself) only
// bumps runCount.
func beginRun(s *Source) {
	if s.runCount == 0 {
		s.state = sourceRunningClean
	}
	s.runCount++
}

// finishRun applies a callback's keep/remove decision, honoring a
// mustRemove set reentrantly (by the callback itself, or by another
// callback invoked earlier in the same walk) over a truthy return.
func (r *Reactor) finishRun(s *Source, keep bool) {
	if s.runCount > 0 {
		return // still executing an outer invocation; destruction deferred
	}
	if s.mustRemove || !keep {
		r.destroySource(s)
		return
	}
	s.state = sourceLive
}

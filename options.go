// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gsk

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	backendName     string
	metricsEnabled  bool
	logger          Logger
	signalBufferLen int
	singleThreaded  bool
	acceleratedTime bool
}

// ReactorOption configures a Reactor instance.
type ReactorOption interface {
	applyReactor(*reactorOptions) error
}

// reactorOptionFunc implements ReactorOption.
type reactorOptionFunc struct {
	fn func(*reactorOptions) error
}

func (o *reactorOptionFunc) applyReactor(opts *reactorOptions) error {
	return o.fn(opts)
}

// WithBackend pins the reactor to a named backend (epoll, kqueue, devpoll,
// poll, select), overriding both GSK_MAIN_LOOP_TYPE and the autoconf list.
// An empty string (the default) defers to environment/autoconf selection.
func WithBackend(name string) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.backendName = name
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Reactor. When
// enabled, metrics can be read via Reactor.Metrics(). This adds the cost of
// one P-square update per source callback; disable in latency-sensitive
// deployments.
func WithMetrics(enabled bool) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithLogger stores a structured Logger on the reactor (defaulting to the
// package-level logger set via SetStructuredLogger). The reactor's
// fails-silently error paths (backend wait errors, signal write failures,
// waitpid errors) do not read the stored logger: they always log through
// the package-level logger.
func WithLogger(logger Logger) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithSignalBufferLen sets the capacity of the per-reactor signal/process
// notification buffer drained each iteration. Default is 64.
func WithSignalBufferLen(n int) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.signalBufferLen = n
		return nil
	}}
}

// WithSingleThreaded collapses DefaultReactor to one process-wide instance
// instead of one per calling goroutine.
func WithSingleThreaded(enabled bool) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.singleThreaded = enabled
		return nil
	}}
}

// WithAcceleratedTime switches the reactor's clock to the tick-accelerated
// source: Now() extrapolates elapsed wall-clock time from
// CLOCK_MONOTONIC_RAW readings between
// Resync calls instead of calling time.Now() directly, and Run resyncs the
// anchor once per iteration. Useful under CPU frequency scaling or when
// time.Now()'s vDSO call is itself a measurable per-iteration cost; falls
// back to time.Now() until the tick rate has been sampled (and permanently,
// if CLOCK_MONOTONIC_RAW is unavailable).
func WithAcceleratedTime(enabled bool) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.acceleratedTime = enabled
		return nil
	}}
}

// resolveReactorOptions applies ReactorOption instances to reactorOptions.
func resolveReactorOptions(opts []ReactorOption) (*reactorOptions, error) {
	cfg := &reactorOptions{
		signalBufferLen: 64,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

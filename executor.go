package notifyexec

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ExecutorOption configures a PooledExecutor.
type ExecutorOption interface {
	applyExecutor(*executorConfig)
}

type executorConfig struct {
	logger                     Logger
	maxConsecutivePollerPanics int
}

type executorOptionFunc func(*executorConfig)

func (f executorOptionFunc) applyExecutor(c *executorConfig) { f(c) }

// WithExecutorLogger overrides the Logger used for poller-loop diagnostics
// (panics, transport errors). Defaults to the same zerolog-backed Logger as
// WithLogger.
func WithExecutorLogger(logger Logger) ExecutorOption {
	return executorOptionFunc(func(c *executorConfig) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithMaxConsecutivePollerPanics bounds how many consecutive panics the
// poller's forever-retry guard tolerates before giving up and exiting. A
// non-positive value (the default) means unbounded retries, matching the
// upstream behavior this module is adapted from.
func WithMaxConsecutivePollerPanics(n int) ExecutorOption {
	return executorOptionFunc(func(c *executorConfig) {
		c.maxConsecutivePollerPanics = n
	})
}

func resolveExecutorConfig(opts []ExecutorOption) *executorConfig {
	cfg := &executorConfig{logger: defaultLogger()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyExecutor(cfg)
	}
	return cfg
}

// PooledExecutor owns one poller goroutine and one bounded worker pool. It
// bridges a Listener's synchronous Poll/BatchPoll calls to asynchronous
// dispatch, bookkeeping in-flight work and enabling deterministic shutdown.
//
// A PooledExecutor's lifecycle operations (Start, Stop, Wait) must be
// serialized by the caller; concurrent calls to Start/Stop are not
// supported, matching §5 of the design.
type PooledExecutor struct {
	config   Config
	listener Listener
	dispatch Dispatch
	logger   Logger
	maxConsecutivePollerPanics int

	lifecycleMu sync.Mutex
	sem         *semaphore.Weighted
	accepting   bool
	pollerAlive bool
	pollerDone  chan struct{}

	tombstone *tombstone

	inflightMu sync.Mutex
	inflight   map[chan struct{}]struct{}
}

// NewPooledExecutor constructs a PooledExecutor. It is not started; call
// Start to begin polling.
func NewPooledExecutor(config Config, listener Listener, dispatch Dispatch, opts ...ExecutorOption) *PooledExecutor {
	cfg := resolveExecutorConfig(opts)
	return &PooledExecutor{
		config:                     config,
		listener:                   listener,
		dispatch:                   dispatch,
		logger:                     cfg.logger,
		maxConsecutivePollerPanics: cfg.maxConsecutivePollerPanics,
		tombstone:                  newTombstone(),
		inflight:                   make(map[chan struct{}]struct{}),
	}
}

// Start is idempotent: it lazily constructs the worker pool, clears the
// tombstone, and spawns the poller goroutine if one isn't already alive.
func (e *PooledExecutor) Start() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.sem == nil {
		e.sem = semaphore.NewWeighted(int64(e.config.poolSize()))
	}
	e.accepting = true
	e.tombstone.clear()

	if !e.pollerAlive {
		e.pollerAlive = true
		done := make(chan struct{})
		e.pollerDone = done
		go e.runPoller(done)
	}
}

// Stop requests shutdown: the pool stops accepting new submissions (tasks
// already submitted continue to run to completion), the tombstone is set,
// and the listener is told to stop. Stop is idempotent and never blocks.
func (e *PooledExecutor) Stop() {
	e.lifecycleMu.Lock()
	e.accepting = false
	e.lifecycleMu.Unlock()

	e.tombstone.set()
	e.listener.Stop()
}

// Wait drains the executor: it waits for the tombstone, joins the poller,
// then waits for every in-flight task to finish (including its ack/requeue),
// honoring ctx's deadline as a single budget across all three phases. It
// returns true only once every phase completed before ctx was done; a false
// return means the caller may call Wait again to continue draining from
// where this call left off. A nil ctx waits indefinitely.
func (e *PooledExecutor) Wait(ctx context.Context) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !e.tombstone.wait(ctx) {
		return false, nil
	}

	e.lifecycleMu.Lock()
	pollerDone := e.pollerDone
	e.lifecycleMu.Unlock()

	if pollerDone != nil {
		select {
		case <-pollerDone:
		case <-ctx.Done():
			return false, nil
		}
	}

	e.inflightMu.Lock()
	handles := make([]<-chan struct{}, 0, len(e.inflight))
	for h := range e.inflight {
		handles = append(handles, h)
	}
	e.inflightMu.Unlock()

	if pending := waitAll(ctx, handles); len(pending) > 0 {
		return false, nil
	}

	e.lifecycleMu.Lock()
	e.sem = nil
	e.pollerAlive = false
	e.pollerDone = nil
	e.lifecycleMu.Unlock()

	return true, nil
}

// runPoller is the forever-retry guard: each iteration recovers from its own
// panics, logs them, and continues, bounded only by
// maxConsecutivePollerPanics (0 meaning unbounded).
func (e *PooledExecutor) runPoller(done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	consecutivePanics := 0
	for {
		if e.tombstone.isSet() {
			return
		}
		if !e.pollOnce(ctx, &consecutivePanics) {
			return
		}
	}
}

func (e *PooledExecutor) pollOnce(ctx context.Context, consecutivePanics *int) (keepGoing bool) {
	keepGoing = true
	defer func() {
		if r := recover(); r != nil {
			*consecutivePanics++
			e.logger.Error("unexpected error in poller loop", recoverToError(r), nil)
			if e.maxConsecutivePollerPanics > 0 && *consecutivePanics >= e.maxConsecutivePollerPanics {
				keepGoing = false
			}
		}
	}()

	ec, err := e.dispatch.Poll(ctx, e.listener)
	if err != nil {
		e.logger.Error("error polling transport", err, nil)
		*consecutivePanics = 0
		return true
	}
	if ec == nil {
		*consecutivePanics = 0
		return true
	}
	*consecutivePanics = 0
	return e.doSubmit(ec)
}

// doSubmit attempts to hand ec.Run to the worker pool. If the pool is no
// longer accepting work, ec.Done is invoked directly (finalizing the
// already-pulled message - see DESIGN.md on the submission-failure open
// question) and false is returned, telling the poller to exit.
func (e *PooledExecutor) doSubmit(ec *ExecutionContext) bool {
	e.lifecycleMu.Lock()
	accepting := e.accepting
	sem := e.sem
	e.lifecycleMu.Unlock()

	if !accepting || sem == nil {
		ec.Done()
		return false
	}

	handle := make(chan struct{})
	e.inflightMu.Lock()
	e.inflight[handle] = struct{}{}
	e.inflightMu.Unlock()

	go func() {
		defer func() {
			e.inflightMu.Lock()
			delete(e.inflight, handle)
			e.inflightMu.Unlock()
			ec.Done()
			close(handle)
		}()

		if err := sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer sem.Release(1)
		ec.Run()
	}()

	return true
}

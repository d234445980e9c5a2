package co

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// A Reactor executes tasks on its workers and dispatches one-shot timers.
// Routines are bound to a reactor; every implicit post (resumption handoffs,
// Yield, Async, RunOutside) goes through it.
type Reactor interface {
	// Post enqueues task to run on some worker.
	Post(task func())

	// Timer arms a one-shot timer. onExpire runs as a posted task, with
	// canceled reporting whether the timer was stopped early. The returned
	// cancel function reports true when it stopped the timer before it
	// fired; a canceled timer still delivers onExpire(true).
	Timer(d time.Duration, onExpire func(canceled bool)) (cancel func() bool)
}

var pkgLogger atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.Nop()
	pkgLogger.Store(&l)
}

// SetLogger installs the package logger. The runtime logs at debug level for
// reactor lifecycle events and at error level for failures that have no one
// left to report to (detached routines, generator producers). The default
// logger discards everything.
func SetLogger(l zerolog.Logger) {
	pkgLogger.Store(&l)
}

func logger() *zerolog.Logger {
	return pkgLogger.Load()
}

var defaultReactorProvider atomic.Pointer[func() Reactor]

var fallbackLoop = sync.OnceValue(func() Reactor { return NewLoop() })

// SetDefaultReactor installs the provider consulted by New and Async, and by
// SleepFor and friends when no routine is current. The provider may be called
// from any goroutine.
func SetDefaultReactor(provider func() Reactor) {
	defaultReactorProvider.Store(&provider)
}

// DefaultReactor returns the process-wide default reactor. Unless a provider
// was installed, this is a lazily created Loop; it needs workers (see
// StartWorkers) before timers and posted tasks make progress.
func DefaultReactor() Reactor {
	if p := defaultReactorProvider.Load(); p != nil {
		return (*p)()
	}
	return fallbackLoop()
}

// CurrentReactor returns the reactor of the routine running on the calling
// goroutine, or the default reactor outside a routine.
func CurrentReactor() Reactor {
	if r := Current(); r != nil {
		return r.reactor
	}
	return DefaultReactor()
}

// Loop is a run-queue Reactor: tasks posted to it are drained in FIFO order
// by the goroutines calling Run. Pending timers, executing tasks and
// outstanding work guards count as work; Run returns once the loop is out of
// both queued tasks and work, or when it is stopped.
type Loop struct {
	mu      sync.Mutex
	cond    sync.Cond
	queue   []func()
	work    int
	stopped bool
	log     zerolog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop's logger, overriding the package logger.
func WithLogger(l zerolog.Logger) LoopOption {
	return func(lp *Loop) { lp.log = l }
}

// NewLoop returns an idle loop. Nothing runs until a goroutine calls Run.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{log: *logger()}
	l.cond.L = &l.mu
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post enqueues task. Safe from any goroutine, including loop workers.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.cond.Signal()
}

// Run drains the queue on the calling goroutine until the loop is stopped or
// out of work. Multiple goroutines may call Run concurrently. A panic in a
// posted task stops this worker and is returned as an error.
func (l *Loop) Run() error {
	l.log.Debug().Msg("loop worker running")
	defer l.log.Debug().Msg("loop worker done")
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && l.work > 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped || len(l.queue) == 0 {
			l.mu.Unlock()
			return nil
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.work++
		l.mu.Unlock()

		err := l.runTask(task)

		l.mu.Lock()
		l.work--
		idle := l.work == 0 && len(l.queue) == 0
		l.mu.Unlock()
		if idle {
			l.cond.Broadcast()
		}
		if err != nil {
			l.log.Error().Err(err).Msg("loop task panicked")
			return err
		}
	}
}

func (l *Loop) runTask(task func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("co: reactor task panicked: %v", v)
		}
	}()
	task()
	return nil
}

// Stop makes every Run return after its current task. Queued tasks stay
// queued; Reset re-arms the loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
	l.log.Debug().Msg("loop stopped")
}

// Stopped reports whether Stop was called without a Reset since.
func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Reset clears the stopped state so Run can be called again.
func (l *Loop) Reset() {
	l.mu.Lock()
	l.stopped = false
	l.mu.Unlock()
	l.log.Debug().Msg("loop reset")
}

// AddWork keeps Run from returning while the returned release function has
// not been called. Release is idempotent.
func (l *Loop) AddWork() (release func()) {
	l.mu.Lock()
	l.work++
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.work--
			idle := l.work == 0
			l.mu.Unlock()
			if idle {
				l.cond.Broadcast()
			}
		})
	}
}

// Timer implements Reactor. The pending timer counts as work so that a loop
// whose only obligation is a future expiry keeps its workers.
func (l *Loop) Timer(d time.Duration, onExpire func(canceled bool)) (cancel func() bool) {
	release := l.AddWork()
	l.log.Debug().Dur("after", d).Msg("timer armed")
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			defer release()
			l.log.Debug().Msg("timer fired")
			onExpire(false)
		})
	})
	return func() bool {
		if !t.Stop() {
			return false
		}
		l.log.Debug().Msg("timer canceled")
		l.Post(func() {
			defer release()
			onExpire(true)
		})
		return true
	}
}

// WorkerPool runs a fixed number of workers over one Loop. The pool holds a
// work guard for its whole lifetime, so the loop does not run dry between
// tasks; Join releases the guard and waits for the workers to drain.
type WorkerPool struct {
	release func()
	group   errgroup.Group
	size    int
}

// StartWorkers resets l if it was stopped and starts n worker goroutines
// running it.
func StartWorkers(l *Loop, n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	if l.Stopped() {
		l.Reset()
	}
	p := &WorkerPool{release: l.AddWork(), size: n}
	for i := 0; i < n; i++ {
		p.group.Go(l.Run)
	}
	return p
}

// StartWorkersForCPUShare starts workers for the given percentage of the
// machine's CPUs, at least one.
func StartWorkersForCPUShare(l *Loop, percent float64) *WorkerPool {
	n := int(float64(runtime.NumCPU()) * percent / 100)
	return StartWorkers(l, n)
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return p.size }

// Join releases the pool's work guard and waits for every worker to return,
// yielding the first worker failure.
func (p *WorkerPool) Join() error {
	p.release()
	return p.group.Wait()
}

package co

import (
	"sync/atomic"
	"time"
)

// A Promise is the producing half of a shared cell. Exactly one of SetValue
// or SetError must be called, exactly once, from any goroutine.
type Promise[T any] struct {
	c *cell[T]
}

// NewPromise returns an unfulfilled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{c: new(cell[T])}
}

// Future returns the consuming view. The shared cell stays alive while
// either handle does.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{c: p.c}
}

// SetValue publishes v and wakes the waiter, if one is parked.
func (p *Promise[T]) SetValue(v T) {
	p.c.setValue(v)
}

// SetError publishes err instead of a value.
func (p *Promise[T]) SetError(err error) {
	p.c.setError(err)
}

// A Future is the consuming half of a shared cell: awaitable from a routine,
// blockable from a plain goroutine. At most one consumer may park on it at a
// time.
type Future[T any] struct {
	c *cell[T]
}

// IsReady reports whether the value is available. It never blocks.
func (f *Future[T]) IsReady() bool {
	return f.c.isReady()
}

// Wait blocks the calling goroutine until the value is available.
func (f *Future[T]) Wait() {
	f.c.wait()
}

// WaitFor blocks up to d, reporting whether the value became available.
func (f *Future[T]) WaitFor(d time.Duration) bool {
	return f.c.waitFor(d)
}

// Get blocks until the value is available and returns it. From inside a
// routine this pins the worker; prefer Await there.
func (f *Future[T]) Get() (T, error) {
	return f.c.getBlocking()
}

// AwaitReady implements Awaitable.
func (f *Future[T]) AwaitReady() bool {
	return f.c.isReady()
}

// AwaitSuspend implements Awaitable.
func (f *Future[T]) AwaitSuspend(rn *Runner) bool {
	return f.c.suspend(&rn.w)
}

// AwaitResume implements Awaitable.
func (f *Future[T]) AwaitResume() (T, error) {
	return f.c.getUnchecked()
}

// AwaitSynchron implements SynchronAwaitable.
func (f *Future[T]) AwaitSynchron() (T, error) {
	return f.Get()
}

// MakeReadyFuture returns a future that already holds v. Awaiting it never
// suspends.
func MakeReadyFuture[T any](v T) *Future[T] {
	c := &cell[T]{val: v}
	c.cont.Store(readyWaiter)
	return &Future[T]{c: c}
}

// MakeErrorFuture returns a future that already holds err.
func MakeErrorFuture[T any](err error) *Future[T] {
	c := new(cell[T])
	c.setError(err)
	return &Future[T]{c: c}
}

// Async runs fn inside a detached routine on the default reactor and returns
// a future for its result.
func Async[T any](fn func() (T, error)) *Future[T] {
	return AsyncOn(DefaultReactor(), fn)
}

// AsyncOn runs fn inside a detached routine on r and returns a future for
// its result. The routine starts asynchronously, from a posted task.
func AsyncOn[T any](r Reactor, fn func() (T, error)) *Future[T] {
	p := NewPromise[T]()
	f := p.Future()
	r.Post(func() {
		NewOn(r, func() error {
			if perr := catch(func() error {
				v, err := fn()
				if err != nil {
					p.SetError(err)
					return nil
				}
				p.SetValue(v)
				return nil
			}); perr != nil {
				p.SetError(perr)
			}
			return nil
		}).Detach()
	})
	return f
}

// multiRunner is the countdown variant of Runner: the caller resumes once,
// after the last of a batch of completions.
type multiRunner struct {
	w      waiter
	caller *Routine
	count  atomic.Int32
}

func (m *multiRunner) completeOne() {
	if m.count.Add(-1) == 0 {
		runChain(m.caller)
	}
}

// AwaitAll awaits every future and returns their values in order, with the
// first error encountered. Inside a routine it parks once, resuming after
// the last completion; the futures must be distinct. Outside a routine it
// blocks on each future in turn.
func AwaitAll[T any](fs ...*Future[T]) ([]T, error) {
	if len(fs) == 0 {
		return nil, nil
	}
	cur := Current()
	if cur == nil {
		vals := make([]T, len(fs))
		var firstErr error
		for i, f := range fs {
			v, err := f.Get()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			vals[i] = v
		}
		return vals, firstErr
	}

	m := &multiRunner{caller: cur}
	m.w.invoke = m.completeOne
	// One extra count guards against resuming before every suspend attempt
	// has been made; the post-leave drops it at the end.
	m.count.Store(int32(len(fs)) + 1)
	pl := postLeave{run: func() bool {
		for _, f := range fs {
			if !f.c.suspend(&m.w) {
				m.completeOne()
			}
		}
		m.completeOne()
		return true
	}}
	cur.leave(&pl)

	vals := make([]T, len(fs))
	var firstErr error
	for i, f := range fs {
		v, err := f.c.getUnchecked()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		vals[i] = v
	}
	return vals, firstErr
}

package co

import (
	"runtime"
	"sync/atomic"
	"time"
)

// cell is the single-slot primitive everything else is built on. It holds a
// value or an error, set exactly once, and at most one continuation, invoked
// exactly once after the value is published.
//
// The continuation slot moves monotonically:
//
//	empty -> waiter -> ready   (the setter found a waiter and invoked it)
//	empty -> ready             (the setter found no waiter)
//
// The swap to readyWaiter is the linearization point: a load observing it
// also observes the value slot. Setting twice, or installing a second waiter
// while one is parked, is a programming error.
type cell[T any] struct {
	cont atomic.Pointer[waiter]
	val  T
	err  error
}

func (c *cell[T]) isReady() bool {
	return c.cont.Load() == readyWaiter
}

func (c *cell[T]) setValue(v T) {
	c.val = v
	c.publish()
}

func (c *cell[T]) setError(err error) {
	c.err = err
	c.publish()
}

func (c *cell[T]) publish() {
	prev := c.cont.Swap(readyWaiter)
	if prev == readyWaiter {
		panic("co: value set twice on the same cell")
	}
	if prev != nil {
		prev.invoke()
	}
}

// suspend installs w as the continuation. It returns false when the cell is
// already ready; w will then never be invoked and the caller consumes the
// value itself.
func (c *cell[T]) suspend(w *waiter) bool {
	if c.cont.CompareAndSwap(nil, w) {
		return true
	}
	if c.cont.Load() != readyWaiter {
		panic("co: second waiter suspended on the same cell")
	}
	return false
}

// getUnchecked reads the value or error. The cell must be ready. A captured
// panic is raised again here rather than returned.
func (c *cell[T]) getUnchecked() (T, error) {
	if p, ok := c.err.(*PanicError); ok {
		panic(p)
	}
	return c.val, c.err
}

// wait blocks the calling goroutine until the cell is ready. A short spin
// covers the common case of a value that is about to land.
func (c *cell[T]) wait() {
	for i := 0; i < 4; i++ {
		if c.isReady() {
			return
		}
		runtime.Gosched()
	}
	b := newBlockingWaiter()
	if c.suspend(&b.w) {
		b.wait()
	}
}

// waitFor is wait with a deadline, reporting whether the cell became ready.
// On timeout the waiter is removed with a compare-and-swap; whoever wins
// that race owns the outcome, so a lost removal means the value arrived
// concurrently and the cell is ready after all.
func (c *cell[T]) waitFor(d time.Duration) bool {
	if c.isReady() {
		return true
	}
	b := newBlockingWaiter()
	if c.suspend(&b.w) && !b.waitFor(d) {
		if c.cont.CompareAndSwap(&b.w, nil) {
			return false
		}
	}
	return true
}

func (c *cell[T]) getBlocking() (T, error) {
	if !c.isReady() {
		c.wait()
	}
	return c.getUnchecked()
}

// cellAwaiter exposes a bare cell as an awaitable. The mutexes and channels
// park on cells directly through this.
type cellAwaiter[T any] struct {
	c *cell[T]
}

func (a cellAwaiter[T]) AwaitReady() bool             { return a.c.isReady() }
func (a cellAwaiter[T]) AwaitSuspend(rn *Runner) bool { return a.c.suspend(&rn.w) }
func (a cellAwaiter[T]) AwaitResume() (T, error)      { return a.c.getUnchecked() }
func (a cellAwaiter[T]) AwaitSynchron() (T, error)    { return a.c.getBlocking() }

// awaitCell awaits a cell that carries no error.
func awaitCell[T any](c *cell[T]) T {
	v, _ := Await[T](cellAwaiter[T]{c})
	return v
}

package co

import "time"

// A waiter is a continuation parked on a cell. The cell invokes it exactly
// once, after the value has been published.
type waiter struct {
	invoke func()
}

// readyWaiter marks a cell whose value is set. It is distinguishable from
// every real waiter by identity and is never invoked.
var readyWaiter = &waiter{}

// blockingWaiter adapts a cell continuation to a channel receive, so that
// plain goroutines can block on a cell.
type blockingWaiter struct {
	w    waiter
	done chan struct{}
}

func newBlockingWaiter() *blockingWaiter {
	b := &blockingWaiter{done: make(chan struct{})}
	b.w.invoke = func() { close(b.done) }
	return b
}

func (b *blockingWaiter) wait() { <-b.done }

func (b *blockingWaiter) waitFor(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.done:
		return true
	case <-t.C:
		return false
	}
}

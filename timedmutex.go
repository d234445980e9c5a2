package co

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// timedWaiter is one queued acquisition attempt. The finalized flag
// arbitrates between the unlock handoff and the timeout handler: whichever
// claims it owns the outcome, so exactly one of {granted, timed out} wins.
type timedWaiter struct {
	finalized atomic.Bool
	result    cell[bool]
	cancel    func() bool
}

func (w *timedWaiter) claim() bool {
	return w.finalized.CompareAndSwap(false, true)
}

// TimedMutex is a fair mutex whose acquisitions can carry a deadline. Timer
// dispatch uses the current reactor, so a TryLockFor that has to wait needs
// one with running workers. The zero value is an unlocked mutex.
type TimedMutex struct {
	count atomic.Int32

	mu      sync.Mutex
	waiters []*timedWaiter
}

func (m *TimedMutex) spinLock() bool {
	for i := 0; i < mutexSpin; i++ {
		if m.count.CompareAndSwap(0, 1) {
			return true
		}
		if m.count.Load() > 1 {
			break
		}
	}
	runtime.Gosched()
	return m.count.Add(1) == 1
}

func (m *TimedMutex) enqueue(w *timedWaiter) {
	m.mu.Lock()
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()
}

// Lock acquires the mutex, waiting without a deadline.
func (m *TimedMutex) Lock() {
	if m.spinLock() {
		return
	}
	w := new(timedWaiter)
	m.enqueue(w)
	awaitCell(&w.result)
}

// TryLock acquires the mutex without waiting, reporting success.
func (m *TimedMutex) TryLock() bool {
	return m.count.CompareAndSwap(0, 1)
}

// TryLockFor acquires the mutex, giving up after d. Non-positive durations
// degenerate to TryLock. A timed-out waiter withdraws its claim on the
// count; its queue entry is skipped by a later unlock.
func (m *TimedMutex) TryLockFor(d time.Duration) bool {
	if d <= 0 {
		return m.TryLock()
	}
	if m.spinLock() {
		return true
	}
	w := new(timedWaiter)
	w.cancel = CurrentReactor().Timer(d, func(canceled bool) {
		if !canceled && w.claim() {
			w.result.setValue(false)
		}
	})
	m.enqueue(w)
	if awaitCell(&w.result) {
		return true
	}
	m.count.Add(-1)
	return false
}

// Unlock releases the mutex and grants it to the oldest live waiter. Queue
// entries already finalized by their timeout are discarded; the loop bails
// out once the count shows no one left to grant to.
func (m *TimedMutex) Unlock() {
	n := m.count.Add(-1)
	if n < 0 {
		panic("co: unlock of an unlocked mutex")
	}
	if n == 0 {
		return
	}
	for {
		var next *timedWaiter
		m.mu.Lock()
		if len(m.waiters) > 0 {
			next = m.waiters[0]
			m.waiters = m.waiters[1:]
		}
		m.mu.Unlock()

		if next != nil && next.claim() {
			if next.cancel != nil {
				next.cancel()
			}
			next.result.setValue(true)
			return
		}
		if m.count.Load() == 0 {
			return
		}
		runtime.Gosched()
	}
}

package co

import "time"

// Void is the result type of operations that produce no value.
type Void struct{}

// An Awaitable can defer a value. AwaitReady reports whether the value is
// already available. AwaitSuspend installs a continuation and reports
// whether the caller must actually park; false means the value became ready
// during the attempt and the continuation will not resume the caller.
// AwaitResume consumes the value.
type Awaitable[T any] interface {
	AwaitReady() bool
	AwaitSuspend(*Runner) bool
	AwaitResume() (T, error)
}

// SynchronAwaitable is implemented by awaitables that can also be consumed
// with a plain blocking wait, which makes them usable outside a routine.
type SynchronAwaitable[T any] interface {
	AwaitSynchron() (T, error)
}

// postLeave is a task armed by a routine just before it yields its
// goroutine; it runs on the driving worker as the last act of the park.
type postLeave struct {
	run func() bool
}

// Await consumes an awaitable. Inside a routine, a value that is not ready
// suspends the routine and frees the driving worker; the routine resumes
// when the value lands, possibly driven by a different worker. Outside a
// routine, awaitables with a synchronous form block the calling goroutine
// instead, and all others panic.
func Await[T any](a Awaitable[T]) (T, error) {
	if a.AwaitReady() {
		return a.AwaitResume()
	}
	cur := Current()
	if cur == nil {
		if s, ok := a.(SynchronAwaitable[T]); ok {
			return s.AwaitSynchron()
		}
		panic("co: await outside a routine on an awaitable with no synchronous form")
	}
	rn := newRunner(cur)
	pl := postLeave{run: func() bool { return a.AwaitSuspend(rn) }}
	cur.leave(&pl)
	return a.AwaitResume()
}

// SleepAwaiter suspends the awaiting routine on a reactor timer.
type SleepAwaiter struct {
	r Reactor
	d time.Duration
}

// SleepFor returns an awaitable duration bound to the current reactor.
// Negative durations are ready immediately.
func SleepFor(d time.Duration) *SleepAwaiter {
	return &SleepAwaiter{r: CurrentReactor(), d: d}
}

func (s *SleepAwaiter) AwaitReady() bool {
	return s.d < 0
}

func (s *SleepAwaiter) AwaitSuspend(rn *Runner) bool {
	s.r.Timer(s.d, func(bool) { rn.Run() })
	return true
}

func (s *SleepAwaiter) AwaitResume() (Void, error) {
	return Void{}, nil
}

// AwaitSynchron sleeps the calling goroutine; outside a routine there is no
// stack to free.
func (s *SleepAwaiter) AwaitSynchron() (Void, error) {
	time.Sleep(s.d)
	return Void{}, nil
}

// Sleep suspends the current routine for d, or blocks the calling goroutine
// when there is none.
func Sleep(d time.Duration) error {
	_, err := Await[Void](SleepFor(d))
	return err
}

// yieldAwaiter reschedules through a reactor: never ready, resumes after a
// round trip through the run queue.
type yieldAwaiter struct {
	r Reactor
}

func (y yieldAwaiter) AwaitReady() bool {
	return false
}

func (y yieldAwaiter) AwaitSuspend(rn *Runner) bool {
	y.r.Post(rn.Run)
	return true
}

func (y yieldAwaiter) AwaitResume() (Void, error) {
	return Void{}, nil
}

// Yield parks the current routine and reschedules it behind the tasks
// already queued on its reactor. It panics outside a routine.
func Yield() error {
	cur := Current()
	if cur == nil {
		panic("co: Yield outside a routine")
	}
	_, err := Await[Void](yieldAwaiter{r: cur.reactor})
	return err
}

// RunOutside runs fn outside any routine: posted to the current routine's
// reactor while the routine suspends, so code that blocks its thread does
// not pin the routine. Called from a plain goroutine it simply runs fn.
func RunOutside[T any](fn func() (T, error)) (T, error) {
	cur := Current()
	if cur == nil {
		return fn()
	}
	p := NewPromise[T]()
	cur.reactor.Post(func() {
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
	})
	return Await[T](p.Future())
}

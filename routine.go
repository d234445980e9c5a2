package co

import (
	"runtime"
	"sync/atomic"

	"github.com/mrpi/co/internal/gls"
)

// takenRoutine is the reserved marker in the handoff protocol: stored into a
// Runner whose caller has been consumed, and into a continuation slot that
// accepts no further callers.
var takenRoutine = new(Routine)

var activeRoutines atomic.Int64

// ActiveRoutines reports how many routine bodies have started and not yet
// completed. Useful for leak checks around detached routines.
func ActiveRoutines() int {
	return int(activeRoutines.Load())
}

// A Routine runs a function on its own goroutine in straight-line style. The
// body suspends inside Await when a value is not ready, handing the driving
// worker back to the reactor, and resumes when the value lands, driven by
// whichever worker delivered it.
//
// A routine is joinable like a thread (Join) and awaitable like a future
// (its result is the body's error). Handles must not be copied. A routine
// that will not be joined must be detached; a detached routine cleans up
// after itself and logs failures instead of returning them.
type Routine struct {
	reactor Reactor

	// Rendezvous with the body goroutine. The driver sends to hand over
	// control and receives when the body parks again; the body closes the
	// channel once the function has returned. Strict alternation makes one
	// channel serve both directions.
	step chan struct{}

	// Armed by the body just before it parks; executed by the driver the
	// moment the park is observed.
	postLeave atomic.Pointer[postLeave]

	// The parked awaiter to resume when this routine completes. nil, then
	// at most once a caller, then takenRoutine.
	continuation atomic.Pointer[Routine]

	result    cell[Void]
	bodyErr   error
	setResult postLeave

	detached  atomic.Bool
	finalized atomic.Bool
	suspends  atomic.Int32

	locals map[any]localEntry
	gid    uint64
}

// New starts fn as a routine on the default reactor.
func New(fn func() error) *Routine {
	return NewOn(DefaultReactor(), fn)
}

// NewOn starts fn on a fresh goroutine bound to r. It returns once fn has
// either returned or suspended for the first time; until that point the
// constructing goroutine drives the body.
func NewOn(r Reactor, fn func() error) *Routine {
	if r == nil {
		panic("co: routine constructed with a nil reactor")
	}
	rt := &Routine{reactor: r, step: make(chan struct{})}
	rt.setResult.run = rt.publishResult
	activeRoutines.Add(1)
	go rt.body(fn)
	if next := rt.resume(); next != nil {
		runChain(next)
	}
	return rt
}

func (r *Routine) body(fn func() error) {
	r.gid = gls.ID()
	gls.Store(r.gid, r)

	<-r.step

	err := catch(fn)

	r.runLocalCleanups()
	gls.Delete(r.gid)
	activeRoutines.Add(-1)
	r.bodyErr = err
	if old := r.postLeave.Swap(&r.setResult); old != nil {
		panic("co: post-leave slot occupied at routine completion")
	}
	close(r.step)
}

// publishResult is the completion post-leave: it runs on the driver after
// the body's final yield, seals the continuation slot and publishes the
// result cell, waking whoever parked on it.
func (r *Routine) publishResult() bool {
	r.continuation.CompareAndSwap(nil, takenRoutine)
	err := r.bodyErr
	if err != nil {
		r.result.setError(err)
	} else {
		r.result.setValue(Void{})
	}
	if err != nil && r.detached.Load() && r.finalized.CompareAndSwap(false, true) {
		logger().Error().Err(err).Msg("detached routine failed")
	}
	return true
}

// resume hands control to the parked body and drives it until it parks again
// or completes. When the body completed with a parked awaiter, that awaiter
// is returned for the caller to resume next. The handoff protocol guarantees
// a single driver at a time.
func (r *Routine) resume() *Routine {
	for {
		r.step <- struct{}{}
		if _, running := <-r.step; !running {
			next := r.continuation.Swap(takenRoutine)
			r.runPostLeave()
			if next == takenRoutine {
				next = nil
			}
			return next
		}
		if r.runPostLeave() {
			return nil
		}
		// The awaited value was ready during the suspend attempt; the body
		// is not really parked, hand control straight back.
	}
}

// runPostLeave executes the task armed by the body before it parked. It
// reports whether the body is genuinely parked; false means the suspend
// attempt observed a ready value and the body must be resumed.
func (r *Routine) runPostLeave() bool {
	pl := r.postLeave.Swap(nil)
	if pl == nil {
		return true
	}
	return pl.run()
}

// leave arms pl and parks the body until the next resume. Must be called
// from the body goroutine.
func (r *Routine) leave(pl *postLeave) {
	if old := r.postLeave.Swap(pl); old != nil {
		panic("co: routine suspended with a post-leave task already armed")
	}
	r.suspends.Add(1)
	r.step <- struct{}{}
	<-r.step
}

// Current returns the routine running on the calling goroutine, or nil.
func Current() *Routine {
	if v := gls.Load(gls.ID()); v != nil {
		return v.(*Routine)
	}
	return nil
}

// Reactor returns the reactor the routine is bound to.
func (r *Routine) Reactor() Reactor {
	return r.reactor
}

// IsReady reports whether the body has completed and its result is
// observable.
func (r *Routine) IsReady() bool {
	return r.result.isReady()
}

// Join blocks the calling goroutine until the body has returned and yields
// its error. From inside another routine prefer Await, which suspends the
// routine instead of pinning a worker.
func (r *Routine) Join() error {
	_, err := r.result.getBlocking()
	r.finalized.CompareAndSwap(false, true)
	return err
}

// Detach releases the handle. The routine owns itself from here on: a
// failure is logged instead of returned, and no Join is required. Whether
// the completion path or Detach observes the failure is decided by a single
// compare-and-swap, so it is reported exactly once.
func (r *Routine) Detach() {
	r.detached.Store(true)
	if r.result.isReady() && r.finalized.CompareAndSwap(false, true) {
		if err := r.bodyErr; err != nil {
			logger().Error().Err(err).Msg("detached routine failed")
		}
	}
}

// AwaitReady implements Awaitable.
func (r *Routine) AwaitReady() bool {
	return r.result.isReady()
}

// AwaitSuspend implements Awaitable. The caller held by rn moves into the
// continuation slot so that the completion path can resume it directly, on
// the stack of whichever worker finishes the body.
//
// When completion wins the race between installing the waiter and claiming
// the continuation slot, the runner has already fired holding no caller; the
// brief spin waits for it to mark itself consumed, then the caller resumes
// in place.
func (r *Routine) AwaitSuspend(rn *Runner) bool {
	caller := rn.caller.Swap(nil)
	if !r.result.suspend(&rn.w) {
		return false
	}
	if !r.continuation.CompareAndSwap(nil, caller) {
		for rn.caller.Load() != takenRoutine {
			runtime.Gosched()
		}
		return false
	}
	return true
}

// AwaitResume implements Awaitable.
func (r *Routine) AwaitResume() (Void, error) {
	return r.result.getUnchecked()
}

// AwaitSynchron implements SynchronAwaitable; awaiting a routine outside a
// routine degenerates to Join.
func (r *Routine) AwaitSynchron() (Void, error) {
	return Void{}, r.Join()
}

// A Runner owns the "resume the caller" action for one suspension. The
// awaited object invokes Run exactly once when its value is ready; external
// awaitables (timers, posted callbacks) call it from their completion
// handler.
type Runner struct {
	w      waiter
	caller atomic.Pointer[Routine]
}

func newRunner(caller *Routine) *Runner {
	rn := new(Runner)
	rn.caller.Store(caller)
	rn.w.invoke = rn.Run
	return rn
}

// Run resumes the parked caller, unless the caller was taken over by a
// routine's completion path, and then walks the chain of awaiters unblocked
// in turn.
func (rn *Runner) Run() {
	cont := rn.caller.Swap(takenRoutine)
	if cont == nil || cont == takenRoutine {
		return
	}
	runChain(cont)
}

// runChain resumes r and then every routine that r's completion in turn
// unblocks. When the calling goroutine is itself inside a routine the chain
// is posted to the target's reactor instead, so completions signalled from
// within a body do not stall it.
func runChain(r *Routine) {
	for r != nil {
		if Current() != nil {
			next := r
			next.reactor.Post(func() { runChain(next) })
			return
		}
		r = r.resume()
	}
}

// Package co is a stackful coroutine runtime layered on a small reactor.
//
// Code is written in straight-line style inside a [Routine]; every call to
// [Await] is a potential suspension point. When an awaited value is not
// ready, the routine parks, its driving worker returns to the reactor, and
// the routine resumes when the value lands, driven by whichever worker
// delivered it. Nothing suspends implicitly.
//
// The primitives compose from a single building block: a one-shot cell
// holding a value or an error plus at most one continuation. [Promise] and
// [Future] are the two views onto a shared cell; a Routine embeds one for
// its result, which makes routines awaitable exactly like futures. [Mutex],
// [TimedMutex] and the channels are built from the same cells, so they work
// from routines and plain goroutines interchangeably: a plain goroutine
// blocks where a routine would suspend.
//
// A [Reactor] supplies task posting and one-shot timers. [Loop] is the
// bundled implementation; [StartWorkers] runs it on a pool of goroutines.
// Construction of a routine runs its body on the constructing goroutine's
// watch until the first suspension, after which the bound reactor takes
// over.
//
//	loop := co.NewLoop()
//	pool := co.StartWorkers(loop, 4)
//	defer pool.Join()
//
//	r := co.NewOn(loop, func() error {
//		if err := co.Sleep(time.Millisecond); err != nil {
//			return err
//		}
//		fmt.Println("resumed on a worker")
//		return nil
//	})
//	if err := r.Join(); err != nil {
//		log.Fatal(err)
//	}
//
// Failures traverse cells unchanged: a routine body's error is returned from
// Join or Await, and a panic in a body is captured with its stack and raised
// again at the joining call site as a [*PanicError].
package co

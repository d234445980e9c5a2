package co

import (
	"iter"
	"sync"
	"sync/atomic"
)

// errSlot keeps the first error written to it.
type errSlot struct {
	mu  sync.Mutex
	err error
}

func (s *errSlot) set(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *errSlot) get() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func joinAll(routines []*Routine) {
	for _, rt := range routines {
		_, _ = Await[Void](rt)
	}
}

// ForEach applies fn to every element of items, splitting the slice evenly
// across up to parallelism routines on r. The first error stops that
// routine's share and is returned after all routines completed; which
// elements were still processed after a failure is unspecified.
func ForEach[T any](r Reactor, parallelism int, items []T, fn func(T) error) error {
	if len(items) == 0 {
		return nil
	}
	if parallelism < 1 {
		parallelism = 1
	}
	n := min(parallelism, len(items))

	var firstErr errSlot
	per := len(items) / n
	rem := len(items) % n

	routines := make([]*Routine, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + per
		if i < rem {
			end++
		}
		part := items[start:end]
		start = end
		routines = append(routines, NewOn(r, func() error {
			for _, v := range part {
				if err := fn(v); err != nil {
					firstErr.set(err)
					return nil
				}
			}
			return nil
		}))
	}
	joinAll(routines)
	return firstErr.get()
}

// ForEachSeq is ForEach over a sequence of unknown length: parallelism
// consumer routines drain a bounded channel fed from seq. The last consumer
// to finish closes the receiving end, so a run where every consumer failed
// unblocks the producer instead of deadlocking it.
func ForEachSeq[T any](r Reactor, parallelism int, seq iter.Seq[T], fn func(T) error) error {
	if parallelism < 1 {
		parallelism = 1
	}
	sender, receiver := MakeBufferedChannel[T](parallelism)

	var firstErr errSlot
	var consumers atomic.Int32
	consumers.Store(int32(parallelism))

	routines := make([]*Routine, parallelism)
	for i := range routines {
		routines[i] = NewOn(r, func() error {
			defer func() {
				if consumers.Add(-1) == 0 {
					receiver.Close()
				}
			}()
			for {
				v, ok := receiver.Recv()
				if !ok {
					return nil
				}
				if err := fn(v); err != nil {
					firstErr.set(err)
					return nil
				}
			}
		})
	}

	for v := range seq {
		if !sender.Send(v) {
			break
		}
	}
	sender.Close()
	joinAll(routines)
	return firstErr.get()
}

// Generate spawns a detached producer routine on r feeding a rendezvous
// channel and returns the receiving end. The sender closes when fn returns;
// a producer failure is logged, there being no one left to return it to.
func Generate[T any](r Reactor, fn func(*Sender[T]) error) *Receiver[T] {
	sender, receiver := MakeUnbufferedChannel[T]()
	NewOn(r, func() error {
		defer sender.Close()
		return fn(sender)
	}).Detach()
	return receiver
}

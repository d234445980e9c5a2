package co

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The races between "B finishes" and "A registers its interest" are the
// heart of the runtime; these tests grind the interleavings statistically.

func TestAwaitRacesCompletion(t *testing.T) {
	loop := startTestLoop(t, 4)
	for i := 0; i < 300; i++ {
		b := NewOn(loop, func() error { return Yield() })
		a := NewOn(loop, func() error {
			_, err := Await[Void](b)
			return err
		})
		require.NoError(t, a.Join())
		require.NoError(t, b.Join())
	}
}

func TestAwaitRacesPromiseSet(t *testing.T) {
	loop := startTestLoop(t, 4)
	for i := 0; i < 300; i++ {
		p := NewPromise[int]()
		go p.SetValue(i)
		var got int
		a := NewOn(loop, func() error {
			v, err := Await(p.Future())
			got = v
			return err
		})
		require.NoError(t, a.Join())
		require.Equal(t, i, got)
	}
}

func TestCompletionChainWalk(t *testing.T) {
	loop := startTestLoop(t, 1)
	const depth = 10
	routines := make([]*Routine, depth)
	for i := depth - 1; i >= 0; i-- {
		if i == depth-1 {
			routines[i] = NewOn(loop, func() error {
				return Sleep(10 * time.Millisecond)
			})
			continue
		}
		next := routines[i+1]
		routines[i] = NewOn(loop, func() error {
			_, err := Await[Void](next)
			return err
		})
	}
	for _, r := range routines {
		require.NoError(t, r.Join())
	}
}

func TestWaitForRacesSet(t *testing.T) {
	for i := 0; i < 200; i++ {
		p := NewPromise[int]()
		f := p.Future()
		go func() {
			time.Sleep(time.Duration(i%3) * time.Microsecond)
			p.SetValue(1)
		}()
		// Whatever the race decided, the value must still land exactly once
		// and remain observable.
		f.WaitFor(time.Microsecond)
		v, err := f.Get()
		require.NoError(t, err)
		require.Equal(t, 1, v)
	}
}

func TestManyRoutinesAwaitIndependentPromises(t *testing.T) {
	loop := startTestLoop(t, 4)
	const n = 200
	promises := make([]*Promise[int], n)
	routines := make([]*Routine, n)
	results := make([]int, n)
	for i := 0; i < n; i++ {
		promises[i] = NewPromise[int]()
		p := promises[i]
		routines[i] = NewOn(loop, func() error {
			v, err := Await(p.Future())
			results[i] = v
			return err
		})
	}
	for i, p := range promises {
		go p.SetValue(i * 3)
	}
	for i, r := range routines {
		require.NoError(t, r.Join())
		require.Equal(t, i*3, results[i])
	}
}

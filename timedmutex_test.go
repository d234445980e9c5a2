package co

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimedMutexTryLock(t *testing.T) {
	var m TimedMutex
	require.True(t, m.TryLock())
	require.False(t, m.TryLock())
	m.Unlock()
	require.True(t, m.TryLock())
	m.Unlock()
}

func TestTimedMutexLockUnlock(t *testing.T) {
	loop := startTestLoop(t, 2)
	var m TimedMutex
	counter := 0
	all := make([]*Routine, 4)
	for i := range all {
		all[i] = NewOn(loop, func() error {
			for j := 0; j < 100; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
			return nil
		})
	}
	for _, r := range all {
		require.NoError(t, r.Join())
	}
	require.Equal(t, 400, counter)
}

func TestTimedMutexTryLockForZeroDuration(t *testing.T) {
	var m TimedMutex
	require.True(t, m.TryLockFor(0))
	require.False(t, m.TryLockFor(0))
	require.False(t, m.TryLockFor(-time.Second))
	m.Unlock()
}

func TestTimedMutexTimesOut(t *testing.T) {
	loop := startTestLoop(t, 2)
	var m TimedMutex
	m.Lock()

	start := time.Now()
	var got bool
	r := NewOn(loop, func() error {
		got = m.TryLockFor(30 * time.Millisecond)
		return nil
	})
	require.NoError(t, r.Join())
	require.False(t, got)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// The holder can still release and re-acquire after the waiter gave up.
	m.Unlock()
	require.True(t, m.TryLock())
	m.Unlock()
}

func TestTimedMutexGrantedBeforeTimeout(t *testing.T) {
	loop := startTestLoop(t, 2)
	var m TimedMutex
	m.Lock()

	var got bool
	r := NewOn(loop, func() error {
		got = m.TryLockFor(5 * time.Second)
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	m.Unlock()
	require.NoError(t, r.Join())
	require.True(t, got)
	m.Unlock()
}

func TestTimedMutexUnlockSkipsTimedOutWaiter(t *testing.T) {
	loop := startTestLoop(t, 2)
	var m TimedMutex
	m.Lock()

	timedOut := NewOn(loop, func() error {
		if m.TryLockFor(10 * time.Millisecond) {
			m.Unlock()
		}
		return nil
	})
	require.NoError(t, timedOut.Join())

	// The stale queue entry must not absorb the next grant.
	granted := NewOn(loop, func() error {
		if !m.TryLockFor(5 * time.Second) {
			t.Error("waiter was not granted the mutex")
			return nil
		}
		m.Unlock()
		return nil
	})
	time.Sleep(5 * time.Millisecond)
	m.Unlock()
	require.NoError(t, granted.Join())
}

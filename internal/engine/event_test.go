package engine

import (
	"sync"
	"testing"
)

func TestEventInvoke(t *testing.T) {
	var e Event
	calls := 0
	e.AddListener(func() { calls++ })
	e.AddListener(nil)
	e.AddListener(func() { calls += 10 })

	e.Invoke()
	if calls != 11 {
		t.Errorf("Expected 11, got %d", calls)
	}
	if e.ListenerCount() != 2 {
		t.Errorf("nil listener should be ignored, got %d listeners", e.ListenerCount())
	}

	e.RemoveAllListeners()
	e.Invoke()
	if calls != 11 {
		t.Error("listeners should be removed")
	}
}

func TestEventWithArg(t *testing.T) {
	var e EventWithArg[uint32]
	var got []uint32
	e.AddListener(func(frame uint32) { got = append(got, frame) })

	e.Invoke(1)
	e.Invoke(2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected [1 2], got %v", got)
	}
}

func TestEventRemoveListener(t *testing.T) {
	var e EventWithArg[int]
	var a, b int
	removeA := e.AddListener(func(v int) { a += v })
	e.AddListener(func(v int) { b += v })

	e.Invoke(1)
	removeA()
	removeA()
	e.Invoke(2)
	if a != 1 || b != 3 {
		t.Errorf("Expected a=1 b=3, got a=%d b=%d", a, b)
	}
	if e.ListenerCount() != 1 {
		t.Errorf("Expected 1 listener, got %d", e.ListenerCount())
	}
}

func TestEventRemoveDuringInvoke(t *testing.T) {
	var e Event
	calls := 0
	var remove func()
	remove = e.AddListener(func() {
		calls++
		remove()
	})
	e.AddListener(func() { calls++ })

	e.Invoke()
	e.Invoke()
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestEventConcurrentAdd(t *testing.T) {
	var e EventWithArg[int]
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.AddListener(func(int) {})
		}()
		go func() {
			defer wg.Done()
			e.Invoke(i)
		}()
	}
	wg.Wait()
	if e.ListenerCount() != 8 {
		t.Errorf("Expected 8 listeners, got %d", e.ListenerCount())
	}
}

// Package rthread provides the render thread: a single goroutine that
// executes commands posted by the game thread, in order. Ownership of
// anything captured by a command moves to the render thread when the
// command is posted.
package rthread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("rthread: thread closed")

// Thread is a command queue drained by one goroutine.
type Thread struct {
	name string
	cmds chan func()

	mu     sync.RWMutex
	closed bool

	gid      atomic.Int64
	executed atomic.Uint64
}

// New returns a thread with room for depth queued commands.
// Enqueue blocks while the queue is full.
func New(name string, depth int) *Thread {
	if depth <= 0 {
		depth = 64
	}
	return &Thread{name: name, cmds: make(chan func(), depth)}
}

// Name returns the thread name.
func (t *Thread) Name() string {
	return t.name
}

// Run executes commands on the calling goroutine until the thread is
// closed, either by Close or by ctx being done. Commands already queued
// when the thread closes are still executed.
func (t *Thread) Run(ctx context.Context) error {
	if !t.gid.CompareAndSwap(0, goid.Get()) {
		return fmt.Errorf("rthread: %s is already running", t.name)
	}
	defer t.gid.Store(0)
	stop := context.AfterFunc(ctx, t.Close)
	defer stop()
	for cmd := range t.cmds {
		cmd()
		t.executed.Add(1)
	}
	return nil
}

// Enqueue posts cmd for execution on the render thread.
func (t *Thread) Enqueue(cmd func()) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	t.cmds <- cmd
	return nil
}

// Flush waits until every command posted before the call has executed.
func (t *Thread) Flush(ctx context.Context) error {
	if t.IsCurrent() {
		return fmt.Errorf("rthread: Flush called on %s itself", t.name)
	}
	done := make(chan struct{})
	if err := t.Enqueue(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting commands. Run returns once the queue is drained.
func (t *Thread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.cmds)
}

// IsClosed reports whether Close has been called.
func (t *Thread) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// IsCurrent reports whether the caller is running on this thread.
func (t *Thread) IsCurrent() bool {
	id := t.gid.Load()
	return id != 0 && id == goid.Get()
}

// MustBeCurrent panics if the caller is not running on this thread.
// It guards entry points that are only valid on the render thread.
func (t *Thread) MustBeCurrent(what string) {
	if !t.IsCurrent() {
		panic(fmt.Sprintf("rthread: %s called off the %s thread", what, t.name))
	}
}

// Executed returns the number of commands run so far.
func (t *Thread) Executed() uint64 {
	return t.executed.Load()
}

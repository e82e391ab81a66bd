package rthread

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, th *Thread) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- th.Run(ctx) }()
	return cancel, done
}

func TestThreadOrderAndAffinity(t *testing.T) {
	th := New("Render", 4)
	cancel, done := start(t, th)
	defer cancel()

	var order []int
	var onThread []bool
	for i := 0; i < 10; i++ {
		require.NoError(t, th.Enqueue(func() {
			order = append(order, i)
			onThread = append(onThread, th.IsCurrent())
		}))
	}
	require.NoError(t, th.Flush(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	for _, ok := range onThread {
		assert.True(t, ok)
	}
	assert.False(t, th.IsCurrent())
	assert.Panics(t, func() { th.MustBeCurrent("SubmitWork") })

	th.Close()
	require.NoError(t, <-done)
	assert.Equal(t, uint64(11), th.Executed())
}

func TestThreadClosedEnqueue(t *testing.T) {
	th := New("Render", 1)
	th.Close()
	th.Close()
	assert.ErrorIs(t, th.Enqueue(func() {}), ErrClosed)
	assert.True(t, th.IsClosed())
}

func TestThreadDrainsOnCancel(t *testing.T) {
	th := New("Render", 16)
	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, th.Enqueue(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, th.Run(ctx))
	assert.Equal(t, 5, ran, "queued commands still execute")
	assert.ErrorIs(t, th.Enqueue(func() {}), ErrClosed)
}

func TestThreadFlushTimeout(t *testing.T) {
	th := New("Render", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.Flush(ctx), context.DeadlineExceeded)
	th.Close()
}

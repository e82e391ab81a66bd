package shader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// CompileMode selects whether compile jobs run inline or on background workers.
type CompileMode int

const (
	// CompileAuto compiles synchronously in headless, automation and
	// cooking contexts and asynchronously otherwise.
	CompileAuto CompileMode = iota
	CompileSync
	CompileAsync
)

func (m CompileMode) String() string {
	switch m {
	case CompileSync:
		return "sync"
	case CompileAsync:
		return "async"
	}
	return "auto"
}

// ParseCompileMode parses "auto", "sync" or "async".
func ParseCompileMode(s string) (CompileMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CompileAuto, nil
	case "sync":
		return CompileSync, nil
	case "async":
		return CompileAsync, nil
	}
	return CompileAuto, fmt.Errorf("shader: unknown compile mode %q", s)
}

// ErrPending is returned by [CompileHandle.Result] before the job finishes.
var ErrPending = errors.New("shader: compile pending")

// QueueOptions configures a [CompileQueue].
type QueueOptions struct {
	Mode CompileMode

	// Headless and Automation force synchronous compiles under CompileAuto.
	Headless   bool
	Automation bool

	// Workers bounds the number of concurrent background compiles.
	Workers int

	// CacheSize is the number of shader maps kept by content hash.
	CacheSize int

	Logger *slog.Logger
}

type cacheKey struct {
	hash     Hash
	platform Platform
	level    FeatureLevel
}

// CompileQueue runs compile jobs against a [Compiler], either inline or on
// a bounded pool of background workers, and caches results by content hash.
type CompileQueue struct {
	compiler Compiler
	opts     QueueOptions
	cache    *lru.Cache[cacheKey, *ShaderMap]
	group    errgroup.Group
	pending  atomic.Int64
	log      *slog.Logger
}

// NewCompileQueue returns a queue compiling with c.
func NewCompileQueue(c Compiler, opts QueueOptions) *CompileQueue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cache, _ := lru.New[cacheKey, *ShaderMap](opts.CacheSize)
	q := &CompileQueue{
		compiler: c,
		opts:     opts,
		cache:    cache,
		log:      opts.Logger.With("component", "shader-compile"),
	}
	q.group.SetLimit(opts.Workers)
	return q
}

// Synchronous reports whether a job submitted now runs inline.
func (q *CompileQueue) Synchronous(cooking bool) bool {
	switch q.opts.Mode {
	case CompileSync:
		return true
	case CompileAsync:
		return cooking
	}
	return cooking || q.opts.Headless || q.opts.Automation
}

// Pending returns the number of background jobs not yet finished.
func (q *CompileQueue) Pending() int {
	return int(q.pending.Load())
}

// Submit queues job. onDone is called exactly once with the result,
// inline for synchronous compiles and on a worker goroutine otherwise.
func (q *CompileQueue) Submit(ctx context.Context, job *CompileJob, onDone func(*ShaderMap, error)) *CompileHandle {
	return q.submit(ctx, job, q.Synchronous(false), onDone)
}

// SubmitSync compiles job inline regardless of mode. Cooking uses it.
func (q *CompileQueue) SubmitSync(ctx context.Context, job *CompileJob, onDone func(*ShaderMap, error)) *CompileHandle {
	return q.submit(ctx, job, true, onDone)
}

func (q *CompileQueue) submit(ctx context.Context, job *CompileJob, sync bool, onDone func(*ShaderMap, error)) *CompileHandle {
	h := newCompileHandle(onDone)
	key := cacheKey{job.Hash, job.Platform, job.FeatureLevel}
	if sm, ok := q.cache.Get(key); ok {
		h.finish(sm, nil)
		return h
	}
	run := func() {
		sm, err := q.compiler.Compile(ctx, job)
		if err == nil && sm != nil {
			q.cache.Add(key, sm)
		}
		if err == nil && sm == nil {
			err = fmt.Errorf("shader: compiler returned no shader map for %s", job.FriendlyName)
		}
		h.finish(sm, err)
	}
	if sync {
		run()
		return h
	}
	q.pending.Add(1)
	q.log.Debug("compile queued", "resource", job.FriendlyName, "hash", job.Hash.String())
	q.group.Go(func() error {
		defer q.pending.Add(-1)
		run()
		return nil
	})
	return h
}

// Wait blocks until every background job has finished.
// It must be called from the goroutine that submits jobs.
func (q *CompileQueue) Wait() {
	q.group.Wait()
}

// CompileHandle is the pollable completion handle of one compile job.
type CompileHandle struct {
	done   chan struct{}
	once   sync.Once
	onDone func(*ShaderMap, error)
	sm     *ShaderMap
	err    error
}

func newCompileHandle(onDone func(*ShaderMap, error)) *CompileHandle {
	return &CompileHandle{done: make(chan struct{}), onDone: onDone}
}

func (h *CompileHandle) finish(sm *ShaderMap, err error) {
	h.once.Do(func() {
		h.sm, h.err = sm, err
		if h.onDone != nil {
			h.onDone(sm, err)
		}
		close(h.done)
	})
}

// Done is closed once the job has finished and its callback has returned.
func (h *CompileHandle) Done() <-chan struct{} {
	return h.done
}

// Poll reports whether the job has finished.
func (h *CompileHandle) Poll() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome, or ErrPending if the job is still running.
func (h *CompileHandle) Result() (*ShaderMap, error) {
	if !h.Poll() {
		return nil, ErrPending
	}
	return h.sm, h.err
}

// Wait blocks until the job finishes or ctx is done.
func (h *CompileHandle) Wait(ctx context.Context) (*ShaderMap, error) {
	select {
	case <-h.done:
		return h.sm, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Diagnostics returns the compiler messages of a failed job.
func (h *CompileHandle) Diagnostics() []string {
	_, err := h.Result()
	var cf *CompileFailure
	if errors.As(err, &cf) {
		return cf.Diagnostics
	}
	if err != nil && !errors.Is(err, ErrPending) {
		return []string{err.Error()}
	}
	return nil
}

package computegraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"computegraph/internal/observability"
	"computegraph/internal/rdg"
	"computegraph/internal/rthread"
	"computegraph/internal/shader"

	"cogentcore.org/core/base/ordmap"
	"go.opentelemetry.io/otel/attribute"
)

// Execution groups submitted by the frame driver, in submission order.
const (
	GroupImmediate        = "Immediate"
	GroupEndOfFrameUpdate = "EndOfFrameUpdate"
)

// graphInvocation is one instance's work for one frame. It owns its
// provider proxies until it is consumed or discarded.
type graphInvocation struct {
	proxy     *GraphProxy
	providers []RenderProxy
	fallback  func()
	owner     string
	released  bool
}

func (inv *graphInvocation) release() int {
	if inv.released {
		return 0
	}
	inv.released = true
	n := releaseProxies(inv.providers)
	inv.providers = nil
	return n
}

// releaseProxies releases every non-nil proxy and returns how many there were.
func releaseProxies(proxies []RenderProxy) int {
	n := 0
	for i, p := range proxies {
		if p == nil {
			continue
		}
		if r, ok := p.(Releaser); ok {
			r.Release()
		}
		proxies[i] = nil
		n++
	}
	return n
}

// WorkerStats are cumulative TaskWorker counters.
type WorkerStats struct {
	Enqueued   uint64
	Dispatches uint64
	Fallbacks  uint64
	Submits    uint64
	Released   uint64
}

// TaskWorker queues graph invocations per execution group on the render
// thread and turns them into compute passes at each group's submission
// point.
type TaskWorker struct {
	thread *rthread.Thread
	log    *slog.Logger

	mu     sync.Mutex
	groups *ordmap.Map[string, []*graphInvocation]
	closed bool

	enqueued   atomic.Uint64
	dispatches atomic.Uint64
	fallbacks  atomic.Uint64
	submits    atomic.Uint64
	released   atomic.Uint64
}

// NewTaskWorker returns a worker. When thread is not nil, Enqueue and
// SubmitWork must be called on it.
func NewTaskWorker(thread *rthread.Thread) *TaskWorker {
	return &TaskWorker{
		thread: thread,
		log:    slog.Default().With("component", "compute-worker"),
		groups: ordmap.New[string, []*graphInvocation](),
	}
}

func (w *TaskWorker) assertRenderThread(what string) {
	if w.thread != nil {
		w.thread.MustBeCurrent(what)
	}
}

// Enqueue adds one invocation to group. The worker takes ownership of
// providers; a nil slot is allowed and kept aligned with the graph's
// data interfaces.
func (w *TaskWorker) Enqueue(group, owner string, proxy *GraphProxy, providers []RenderProxy, fallback func()) {
	w.assertRenderThread("TaskWorker.Enqueue")
	inv := &graphInvocation{proxy: proxy, providers: providers, fallback: fallback, owner: owner}
	if proxy == nil {
		w.log.Error("enqueue without graph proxy", "group", group, "owner", owner)
		w.released.Add(uint64(inv.release()))
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.released.Add(uint64(inv.release()))
		return
	}
	list, _ := w.groups.ValueByKeyTry(group)
	w.groups.Add(group, append(list, inv))
	w.mu.Unlock()
	w.enqueued.Add(1)
}

// SubmitWork drains group: every queued invocation either dispatches
// all its kernels into b or, when a kernel is not compiled for fl, runs
// its fallback. Invocations are released afterwards and never retried.
func (w *TaskWorker) SubmitWork(ctx context.Context, b *rdg.Builder, group string, fl shader.FeatureLevel) {
	w.assertRenderThread("TaskWorker.SubmitWork")
	w.mu.Lock()
	invs, _ := w.groups.ValueByKeyTry(group)
	w.groups.DeleteKey(group)
	w.mu.Unlock()
	w.submits.Add(1)
	if len(invs) == 0 {
		return
	}

	_, span := observability.StartSpan(ctx, "computegraph.SubmitWork",
		attribute.String("group", group),
		attribute.Int("invocations", len(invs)),
	)
	defer span.End()

	dispatches := 0
	for _, inv := range invs {
		dispatches += w.submitInvocation(b, inv, fl)
		w.released.Add(uint64(inv.release()))
	}
	span.SetAttributes(attribute.Int("dispatches", dispatches))
}

func (w *TaskWorker) submitInvocation(b *rdg.Builder, inv *graphInvocation, fl shader.FeatureLevel) int {
	if !inv.proxy.IsReady(fl) {
		w.fallbacks.Add(1)
		if inv.fallback != nil {
			inv.fallback()
		} else {
			w.log.Debug("graph not ready and no fallback", "graph", inv.proxy.GraphName, "owner", inv.owner, "level", fl)
		}
		return 0
	}

	for _, p := range inv.providers {
		if p != nil {
			p.AllocateResources(b)
		}
	}

	n := 0
	for ki := range inv.proxy.Kernels {
		k := &inv.proxy.Kernels[ki]
		exec := provider(inv.providers, k.ExecutionIndex)
		if exec == nil {
			w.log.Debug("kernel has no execution provider", "graph", inv.proxy.GraphName, "kernel", k.Name)
			continue
		}
		sm := k.ShaderMap(fl)
		md := sm.Metadata
		if md == nil {
			md = k.Metadata
		}
		count := exec.InvocationCount()
		for i := 0; i < count; i++ {
			binds := shader.NewBindings(md)
			for _, bd := range k.Bound {
				p := provider(inv.providers, bd.Index)
				if p == nil {
					continue
				}
				j := i
				if bd.Index != k.ExecutionIndex {
					if j = min(i, p.InvocationCount()-1); j < 0 {
						continue
					}
				}
				p.Bindings(j, bd.UID, binds)
			}
			if err := binds.Err(); err != nil {
				w.log.Warn("kernel bindings", "graph", inv.proxy.GraphName, "kernel", k.Name, "invocation", i, "err", err)
			}
			if missing := binds.Missing(); len(missing) > 0 {
				w.log.Warn("unbound buffers, dispatch skipped", "graph", inv.proxy.GraphName, "kernel", k.Name, "invocation", i, "members", missing)
				continue
			}
			dim := exec.DispatchDim(i, k.GroupSize)
			if dim[0] <= 0 || dim[1] <= 0 || dim[2] <= 0 {
				continue
			}
			b.AddComputePass(&rdg.ComputePass{
				Name:       fmt.Sprintf("%s/%s[%d]", inv.proxy.GraphName, k.Name, i),
				Shader:     sm,
				Bindings:   binds,
				GroupCount: dim,
			})
			n++
		}
	}
	w.dispatches.Add(uint64(n))
	return n
}

func provider(providers []RenderProxy, i int) RenderProxy {
	if i < 0 || i >= len(providers) {
		return nil
	}
	return providers[i]
}

// HasWork reports whether group has queued invocations.
func (w *TaskWorker) HasWork(group string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	list, ok := w.groups.ValueByKeyTry(group)
	return ok && len(list) > 0
}

// PendingGroups returns the groups with queued work in first-enqueued order.
func (w *TaskWorker) PendingGroups() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.groups.Keys()
}

// Discard releases the queued invocations of group without dispatching.
func (w *TaskWorker) Discard(group string) {
	w.mu.Lock()
	invs, _ := w.groups.ValueByKeyTry(group)
	w.groups.DeleteKey(group)
	w.mu.Unlock()
	for _, inv := range invs {
		w.released.Add(uint64(inv.release()))
	}
}

// Close discards every group. Invocations enqueued afterwards are
// released immediately.
func (w *TaskWorker) Close() {
	w.mu.Lock()
	w.closed = true
	groups := w.groups.Keys()
	w.mu.Unlock()
	for _, g := range groups {
		w.Discard(g)
	}
}

// Stats returns the cumulative counters.
func (w *TaskWorker) Stats() WorkerStats {
	return WorkerStats{
		Enqueued:   w.enqueued.Load(),
		Dispatches: w.dispatches.Load(),
		Fallbacks:  w.fallbacks.Load(),
		Submits:    w.submits.Load(),
		Released:   w.released.Load(),
	}
}

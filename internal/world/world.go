// Package world drives a scene and its compute graph instances frame by
// frame: the game goroutine ticks the scene and enqueues graph work, the
// render goroutine builds and executes one render graph per frame.
package world

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"computegraph/internal/computegraph"
	"computegraph/internal/config"
	"computegraph/internal/engine"
	"computegraph/internal/rdg"
	"computegraph/internal/rthread"
	"computegraph/internal/shader"

	"cogentcore.org/core/base/errors"
	"golang.org/x/sync/errgroup"
)

// Compute is the GPU stack a world dispatches on.
type Compute struct {
	Backend  rdg.Backend
	Compiler shader.Compiler
	Platform shader.Platform

	// WGSLOnly is set when Compiler rejects HLSL kernels.
	WGSLOnly bool
	GPU      bool
}

// Headless returns the CPU stack: a recording backend and the source
// compiler.
func Headless() Compute {
	return Compute{
		Backend:  rdg.NewRecordingBackend(),
		Compiler: shader.SourceCompiler{},
		Platform: shader.PlatformNull,
	}
}

// Entry is one graph bound to one owner.
type Entry struct {
	Graph    *computegraph.Graph
	Instance *computegraph.Instance
	Binding  any
}

// FrameStats describes one executed render frame.
type FrameStats struct {
	Frame  uint32
	Passes int
	Err    error
}

type World struct {
	Scene   *engine.Scene
	Compute Compute

	// OnFrameEnd fires on the render thread after each frame executed.
	OnFrameEnd engine.EventWithArg[FrameStats]
	// OnClose fires once on the closing goroutine after the last frame.
	OnClose engine.Event

	cfg    *config.Config
	queue  *shader.CompileQueue
	levels []shader.FeatureLevel
	thread *rthread.Thread
	worker *computegraph.TaskWorker
	log    *slog.Logger

	entries   []*Entry
	running   errgroup.Group
	started   atomic.Bool
	closeOnce sync.Once

	mu     sync.Mutex
	frames uint64
	failed uint64
}

// Option configures a World.
type Option func(*World)

// WithCompute replaces the platform compute stack.
func WithCompute(c Compute) Option {
	return func(w *World) { w.Compute = c }
}

// New returns a world named name. The compute stack is chosen by the
// platform unless WithCompute is given.
func New(name string, cfg *config.Config, opts ...Option) (*World, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	levels, err := cfg.FeatureLevels()
	if err != nil {
		return nil, err
	}
	w := &World{
		Scene:  engine.NewScene(name),
		cfg:    cfg,
		levels: levels,
		log:    slog.Default().With("world", name),
	}
	for _, o := range opts {
		o(w)
	}
	if w.Compute.Backend == nil {
		w.Compute = initializeCompute(cfg.Debug.Headless)
	}
	qopts := cfg.QueueOptions()
	qopts.Logger = w.log
	w.queue = shader.NewCompileQueue(w.Compute.Compiler, qopts)
	w.thread = rthread.New("render", cfg.Scheduler.RenderQueueDepth)
	w.worker = computegraph.NewTaskWorker(w.thread)
	return w, nil
}

// ComputeWorker implements computegraph.Scene.
func (w *World) ComputeWorker() *computegraph.TaskWorker {
	return w.worker
}

// RenderThread implements computegraph.Scene.
func (w *World) RenderThread() *rthread.Thread {
	return w.thread
}

// CompileQueue returns the queue graphs of this world compile on.
func (w *World) CompileQueue() *shader.CompileQueue {
	return w.queue
}

// GraphOptions returns the options for graphs run in this world.
func (w *World) GraphOptions() []computegraph.GraphOption {
	return []computegraph.GraphOption{
		computegraph.WithCompileQueue(w.queue),
		computegraph.WithPlatform(w.Compute.Platform),
		computegraph.WithFeatureLevels(w.levels...),
		computegraph.WithLogger(w.log),
	}
}

// FeatureLevel is the level passes are dispatched for.
func (w *World) FeatureLevel() shader.FeatureLevel {
	return w.levels[0]
}

// Add binds g to binding and runs it every frame.
func (w *World) Add(g *computegraph.Graph, binding any, opts ...computegraph.InstanceOption) *Entry {
	opts = append([]computegraph.InstanceOption{computegraph.WithFeatureLevel(w.FeatureLevel())}, opts...)
	e := &Entry{Graph: g, Instance: computegraph.NewInstance(opts...), Binding: binding}
	e.Instance.Bind(g, binding)
	w.entries = append(w.entries, e)
	return e
}

// Remove stops running e.
func (w *World) Remove(e *Entry) {
	if i := slices.Index(w.entries, e); i >= 0 {
		w.entries = slices.Delete(w.entries, i, i+1)
		e.Instance.Reset()
	}
}

// Entries returns the running entries.
func (w *World) Entries() []*Entry {
	return w.entries
}

// Update runs one game tick and posts the frame's render work. It must be
// called from the game goroutine.
func (w *World) Update(deltaTime float32) error {
	w.Scene.Update(deltaTime)
	for _, e := range w.entries {
		e.Instance.Bind(e.Graph, e.Binding)
		e.Instance.EnqueueWork(e.Graph, w)
	}
	frame := w.Scene.FrameNumber
	return w.thread.Enqueue(func() { w.renderFrame(frame) })
}

func (w *World) renderFrame(frame uint32) {
	ctx := context.Background()
	b := rdg.NewBuilder(w.Compute.Backend)
	for _, g := range w.cfg.Scheduler.Groups {
		w.worker.SubmitWork(ctx, b, g, w.FeatureLevel())
	}
	err := errors.Log(b.Execute(ctx))

	w.mu.Lock()
	w.frames++
	if err != nil {
		w.failed++
	}
	w.mu.Unlock()
	w.OnFrameEnd.Invoke(FrameStats{Frame: frame, Passes: len(b.Passes()), Err: err})
}

// Frames returns the number of executed and failed render frames.
func (w *World) Frames() (executed, failed uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames, w.failed
}

// Start runs the render thread in the background until Close or ctx is done.
func (w *World) Start(ctx context.Context) {
	w.Scene.Start()
	w.started.Store(true)
	w.running.Go(func() error { return w.thread.Run(ctx) })
}

// Flush waits until every frame posted so far has executed.
func (w *World) Flush(ctx context.Context) error {
	return w.thread.Flush(ctx)
}

// Close drains the render thread, then releases work that was never
// submitted. Frames posted to a world that was never started are run on
// the calling goroutine.
func (w *World) Close() error {
	w.thread.Close()
	var err error
	if w.started.Load() {
		err = w.running.Wait()
	} else {
		err = w.thread.Run(context.Background())
	}
	w.worker.Close()
	w.closeOnce.Do(w.OnClose.Invoke)
	return err
}

// Run ticks frames frames of deltaTime seconds, or until ctx is done when
// frames is not positive, and closes the world.
func (w *World) Run(ctx context.Context, frames int, deltaTime float32) error {
	w.Start(ctx)
	var err error
	for i := 0; frames <= 0 || i < frames; i++ {
		if ctx.Err() != nil {
			break
		}
		if err = w.Update(deltaTime); err != nil {
			break
		}
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, rthread.ErrClosed) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

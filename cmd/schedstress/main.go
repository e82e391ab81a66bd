// Stress test of the compute graph scheduler: many instances of one graph
// enqueued and submitted every frame on the recording backend.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"computegraph/internal/components"
	"computegraph/internal/computegraph"
	"computegraph/internal/config"
	"computegraph/internal/engine"
	"computegraph/internal/graphfile"
	"computegraph/internal/rdg"
	"computegraph/internal/world"

	"cogentcore.org/core/cli"
)

// Config is the command line configuration of schedstress.
type Config struct {

	// Frames is the number of frames per run.
	Frames int `default:"60"`

	// Particles is the particle count of each instance.
	Particles int `default:"256"`

	// Emulate runs the kernels on the CPU instead of only recording them.
	Emulate bool
}

func main() {
	opts := cli.DefaultOptions("schedstress", "Measures the compute graph scheduler with many instances.")
	cli.Run(opts, &Config{}, &cli.Cmd[*Config]{Func: run, Name: "schedstress", Root: true})
}

func run(c *Config) error {
	if c.Frames <= 0 {
		return fmt.Errorf("frames must be positive, got %d", c.Frames)
	}
	// Test various instance counts
	for _, count := range []int{1, 10, 100, 500, 1000, 5000} {
		if err := stress(count, c.Frames, c.Particles, c.Emulate); err != nil {
			return fmt.Errorf("%d instances: %w", count, err)
		}
	}
	return nil
}

func stress(count, frames, particles int, emulate bool) error {
	cfg := config.Default()
	cfg.Shader.CompileMode = "sync"
	cfg.Scheduler.RenderQueueDepth = 4
	backend := rdg.NewRecordingBackend()
	if emulate {
		graphfile.RegisterEmulators(backend)
	}
	c := world.Headless()
	c.Backend = backend
	w, err := world.New("Stress", cfg, world.WithCompute(c))
	if err != nil {
		return err
	}

	doc, err := graphfile.Builtin("orbit")
	if err != nil {
		return err
	}
	g, err := doc.Build(nil, w.GraphOptions()...)
	if err != nil {
		return err
	}
	g.UpdateResources()

	rng := rand.New(rand.NewSource(42)) // Consistent results
	for i := range count {
		obj := engine.NewGameObject(fmt.Sprintf("Emitter_%d", i))
		pb := components.NewParticleBuffer(obj.Name, particles, 1+rng.Intn(4))
		obj.AddComponent(pb)
		w.Scene.AddGameObject(obj)
		group := computegraph.GroupEndOfFrameUpdate
		if i%2 == 1 {
			group = computegraph.GroupImmediate
		}
		w.Add(g, pb, computegraph.WithExecutionGroup(group), computegraph.WithOwnerName(obj.Name))
	}

	// Records are not needed here and would grow with every dispatch.
	w.OnFrameEnd.AddListener(func(world.FrameStats) { backend.Reset() })

	start := time.Now()
	if err := w.Run(context.Background(), frames, 1.0/60); err != nil {
		return err
	}
	perFrame := time.Since(start) / time.Duration(frames)

	s := w.ComputeWorker().Stats()
	executed, failed := w.Frames()
	fmt.Printf("%5d instances: %10v/frame | %7d dispatches | %7d released | %d/%d frames ok | %d buffers live\n",
		count, perFrame.Round(time.Microsecond), s.Dispatches, s.Released,
		executed-failed, executed, backend.Live())
	return nil
}

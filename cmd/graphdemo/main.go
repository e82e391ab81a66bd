// Runs a compute graph on a scene, either in a raylib window with a debug
// overlay or headless for a fixed number of frames.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"

	"computegraph/internal/components"
	"computegraph/internal/computegraph"
	"computegraph/internal/config"
	"computegraph/internal/debugui"
	"computegraph/internal/engine"
	"computegraph/internal/graphfile"
	"computegraph/internal/observability"
	"computegraph/internal/rdg"
	"computegraph/internal/world"

	"cogentcore.org/core/base/errors"
	"cogentcore.org/core/cli"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Config is the command line configuration of graphdemo.
type Config struct {

	// Settings is the TOML settings file. A missing file means defaults.
	Settings string `default:"computegraph.toml"`

	// Graph is a graph file. The builtin orbit graph runs when it is empty.
	Graph string

	// Scene is a scene file. A ring of particles is used when it is empty.
	Scene string

	// Frames runs headless for this many frames instead of opening a window.
	Frames int

	// Watch reloads kernel source files of Graph when they change.
	Watch bool `default:"true"`
}

func main() {
	opts := cli.DefaultOptions("graphdemo", "Runs a compute graph on a scene, in a window or headless.")
	cli.Run(opts, &Config{}, &cli.Cmd[*Config]{Func: run, Name: "graphdemo", Root: true})
}

func run(c *Config) error {
	cfg, err := config.Load(c.Settings)
	if err != nil {
		return err
	}
	headless := cfg.Debug.Headless || c.Frames > 0
	if headless {
		cfg.Debug.Headless = true
	}

	shutdown, err := observability.InitTracing(observability.TracingOptions{
		Service:  "graphdemo",
		Exporter: cfg.Trace.Exporter,
		Endpoint: cfg.Trace.Endpoint,
	})
	if err != nil {
		return err
	}
	defer func() { errors.Log(shutdown(context.Background())) }()

	w, err := world.New("Demo", cfg)
	if err != nil {
		return err
	}
	if rb, ok := w.Compute.Backend.(*rdg.RecordingBackend); ok {
		graphfile.RegisterEmulators(rb)
	}
	fmt.Printf("Compute: gpu=%t platform=%s\n", w.Compute.GPU, w.Compute.Platform)

	if c.Scene != "" {
		if err := w.LoadScene(c.Scene); err != nil {
			return err
		}
	} else {
		defaultScene(w.Scene)
	}

	var doc *graphfile.Document
	if c.Graph != "" {
		doc, err = graphfile.Read(c.Graph)
	} else {
		doc, err = graphfile.Builtin("orbit")
	}
	if err != nil {
		return err
	}
	g, err := doc.Build(nil, w.GraphOptions()...)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	g.UpdateResources()

	bound := 0
	for _, obj := range w.Scene.GameObjects {
		if pb := engine.GetComponent[*components.ParticleBuffer](obj); pb != nil {
			w.Add(g, pb, computegraph.WithOwnerName(obj.Name))
			bound++
		}
	}
	if bound == 0 {
		return fmt.Errorf("scene has no ParticleBuffer to bind %s to", g.Name)
	}
	fmt.Printf("Graph %s bound to %d objects\n", g.Name, bound)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if c.Watch && c.Graph != "" {
		watcher, err := graphfile.NewWatcher(doc, g)
		if err != nil {
			return err
		}
		defer watcher.Close()
		go func() { errors.Log(ignoreCanceled(watcher.Run(ctx))) }()
	}

	if headless {
		if err := w.Run(ctx, c.Frames, 1.0/60); err != nil {
			return err
		}
		printSummary(w)
		return nil
	}
	return runWindow(ctx, w)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// defaultScene adds a ring of particles.
func defaultScene(s *engine.Scene) {
	const count = 512
	obj := engine.NewGameObject("Ring")
	pb := components.NewParticleBuffer("Ring", count, 4)
	values := make([][4]float32, count)
	for i := range values {
		values[i] = [4]float32{0, 0, 0, 3 + 2*float32(math.Sin(float64(i)*0.3))}
	}
	errors.Log(pb.SetValues(values))
	obj.AddComponent(pb)
	s.AddGameObject(obj)
}

func runWindow(ctx context.Context, w *world.World) error {
	rl.SetConfigFlags(rl.FlagMsaa4xHint | rl.FlagWindowResizable)
	rl.InitWindow(1280, 720, "compute graph demo")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	debugui.ApplyTheme()
	overlay := debugui.New(w)
	camera := rl.Camera3D{
		Position:   rl.Vector3{X: 8, Y: 6, Z: 8},
		Target:     rl.Vector3{Y: 1},
		Up:         rl.Vector3{Y: 1},
		Fovy:       45,
		Projection: rl.CameraPerspective,
	}

	w.Start(ctx)
	var err error
	for !rl.WindowShouldClose() && ctx.Err() == nil {
		if err = w.Update(overlay.DeltaTime(rl.GetFrameTime())); err != nil {
			break
		}
		rl.BeginDrawing()
		rl.ClearBackground(rl.NewColor(10, 10, 15, 255))
		rl.BeginMode3D(camera)
		rl.DrawGrid(20, 1)
		for _, obj := range w.Scene.GameObjects {
			pb := engine.GetComponent[*components.ParticleBuffer](obj)
			if pb == nil {
				continue
			}
			origin := obj.WorldPosition()
			for _, v := range pb.Values() {
				p := rl.Vector3Add(origin, rl.Vector3{X: v[0], Y: v[1], Z: v[2]})
				rl.DrawCube(p, 0.08, 0.08, 0.08, rl.SkyBlue)
			}
		}
		rl.EndMode3D()
		overlay.Draw(10, 10)
		rl.DrawFPS(int32(rl.GetScreenWidth()-90), 10)
		rl.EndDrawing()
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	printSummary(w)
	return err
}

func printSummary(w *world.World) {
	executed, failed := w.Frames()
	s := w.ComputeWorker().Stats()
	fmt.Printf("Frames: %d executed, %d failed\n", executed, failed)
	fmt.Printf("Work:   %d enqueued, %d dispatches, %d fallbacks, %d proxies released\n",
		s.Enqueued, s.Dispatches, s.Fallbacks, s.Released)
}

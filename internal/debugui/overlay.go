// Package debugui draws a raygui overlay with the state of a world's
// compute graphs.
package debugui

import (
	"fmt"
	"sync"

	"computegraph/internal/computegraph"
	"computegraph/internal/world"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

var (
	colorPanel  = rl.NewColor(18, 18, 24, 230)
	colorText   = rl.NewColor(220, 220, 235, 255)
	colorOK     = rl.NewColor(120, 220, 140, 255)
	colorBad    = rl.NewColor(240, 110, 110, 255)
	colorAccent = rl.NewColor(108, 99, 255, 255)
)

const (
	lineHeight = 18
	panelWidth = 360
	fontSize   = 14
)

// Overlay shows instance states, scheduler counters and the last render
// frame, and exposes pause and time scale controls.
type Overlay struct {
	World *world.World

	Visible   bool
	Paused    bool
	TimeScale float32

	mu     sync.Mutex
	last   world.FrameStats
	closed bool
}

// New returns a visible overlay for w that tracks its frames.
func New(w *world.World) *Overlay {
	o := &Overlay{World: w, Visible: true, TimeScale: 1}
	stop := w.OnFrameEnd.AddListener(o.frameEnded)
	w.OnClose.AddListener(func() {
		stop()
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()
	})
	return o
}

// frameEnded runs on the render thread.
func (o *Overlay) frameEnded(s world.FrameStats) {
	o.mu.Lock()
	o.last = s
	o.mu.Unlock()
}

// Closed reports whether the world has been closed.
func (o *Overlay) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// LastFrame returns the most recent render frame.
func (o *Overlay) LastFrame() world.FrameStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// DeltaTime scales dt by the controls. Paused worlds do not advance.
func (o *Overlay) DeltaTime(dt float32) float32 {
	if o.Paused {
		return 0
	}
	return dt * o.TimeScale
}

// Line is one row of the overlay.
type Line struct {
	Text string
	OK   bool
}

// Lines returns the overlay text.
func (o *Overlay) Lines() []Line {
	stats := o.World.ComputeWorker().Stats()
	executed, failed := o.World.Frames()
	last := o.LastFrame()
	lines := []Line{
		{Text: fmt.Sprintf("frame %d: %d passes", last.Frame, last.Passes), OK: last.Err == nil},
		{Text: fmt.Sprintf("frames %d executed, %d failed", executed, failed), OK: failed == 0},
		{Text: fmt.Sprintf("enqueued %d  dispatched %d  fallbacks %d", stats.Enqueued, stats.Dispatches, stats.Fallbacks), OK: stats.Fallbacks == 0},
	}
	for _, e := range o.World.Entries() {
		state := e.Instance.State()
		compiled := e.Graph.IsCompiled(o.World.FeatureLevel())
		lines = append(lines, Line{
			Text: fmt.Sprintf("%s [%s] %s compiled=%t", e.Graph.Name, e.Instance.ExecutionGroup(), state, compiled),
			OK:   compiled && state == computegraph.BoundValid,
		})
	}
	if o.Closed() {
		lines = append(lines, Line{Text: "world closed"})
	}
	return lines
}

// ApplyTheme sets the raygui style used by the controls.
func ApplyTheme() {
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_NORMAL, gui.NewColorPropertyValue(rl.NewColor(28, 28, 38, 255)))
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_PRESSED, gui.NewColorPropertyValue(colorAccent))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_COLOR_NORMAL, gui.NewColorPropertyValue(colorText))
	gui.SetStyle(gui.DEFAULT, gui.BORDER_COLOR_FOCUSED, gui.NewColorPropertyValue(colorAccent))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_SIZE, fontSize)
}

// Draw renders the overlay at x, y. It must be called between
// rl.BeginDrawing and rl.EndDrawing.
func (o *Overlay) Draw(x, y int32) {
	if rl.IsKeyPressed(rl.KeyF1) {
		o.Visible = !o.Visible
	}
	if !o.Visible {
		return
	}
	lines := o.Lines()
	height := int32(len(lines)*lineHeight + 70)
	rl.DrawRectangle(x, y, panelWidth, height, colorPanel)
	rl.DrawText("compute graphs (F1)", x+8, y+6, fontSize, colorAccent)

	ly := y + 28
	for _, l := range lines {
		c := colorOK
		if !l.OK {
			c = colorBad
		}
		rl.DrawText(l.Text, x+8, ly, fontSize, c)
		ly += lineHeight
	}

	ly += 6
	o.Paused = gui.CheckBox(rl.Rectangle{X: float32(x + 8), Y: float32(ly), Width: 14, Height: 14}, "Paused", o.Paused)
	o.TimeScale = gui.Slider(rl.Rectangle{X: float32(x + 160), Y: float32(ly), Width: 150, Height: 14},
		"Scale", fmt.Sprintf("%.2f", o.TimeScale), o.TimeScale, 0, 4)
}

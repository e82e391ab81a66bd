package world

import (
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"

	"computegraph/internal/components"
	"computegraph/internal/computegraph"
	"computegraph/internal/config"
	"computegraph/internal/datainterfaces"
	"computegraph/internal/engine"
	"computegraph/internal/rdg"
	"computegraph/internal/shader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const advanceKernel = `[numthreads(64, 1, 1)]
void Advance(uint3 id : SV_DispatchThreadID)
{
	if (id.x >= ReadNumElements()) return;
	float4 v = ReadValue(id.x);
	v.x += ReadDeltaTime();
	WriteValue(id.x, v);
}
`

func advanceGraph(w *World, src string) *computegraph.Graph {
	g := computegraph.NewGraph("Advance", w.GraphOptions()...)
	g.AddDataInterface(datainterfaces.Scene{})
	g.AddDataInterface(datainterfaces.ParticleBuffer{})
	g.AddKernel(computegraph.NewKernel("Advance", &computegraph.KernelSource{
		EntryPoint: "Advance",
		Source:     src,
		ExternalInputs: []shader.FunctionDesc{
			shader.NewFunction("ReadDeltaTime", shader.TypeFloat),
			shader.NewFunction("ReadNumElements", shader.TypeUInt),
			shader.NewFunction("ReadValue", shader.TypeFloat4, shader.TypeUInt),
		},
		ExternalOutputs: []shader.FunctionDesc{
			shader.NewFunction("WriteValue", shader.Void, shader.TypeUInt, shader.TypeFloat4),
		},
	}))
	g.AddEdge(computegraph.GraphEdge{KernelIndex: 0, KernelBindingIndex: 0, DataInterfaceIndex: 0, DataInterfaceBindingIndex: 1, IsKernelInput: true})
	g.AddEdge(computegraph.GraphEdge{KernelIndex: 0, KernelBindingIndex: 1, DataInterfaceIndex: 1, DataInterfaceBindingIndex: 0, IsKernelInput: true})
	g.AddEdge(computegraph.GraphEdge{KernelIndex: 0, KernelBindingIndex: 2, DataInterfaceIndex: 1, DataInterfaceBindingIndex: 1, IsKernelInput: true})
	g.AddEdge(computegraph.GraphEdge{KernelIndex: 0, KernelBindingIndex: 0, DataInterfaceIndex: 1, DataInterfaceBindingIndex: 0})
	g.UpdateResources()
	g.FinishCompilation()
	return g
}

func emulateAdvance(pass *rdg.ComputePass, data func(string) []byte) {
	md := pass.Bindings.Metadata()
	u := pass.Bindings.PackUniform()
	word := func(name string) uint32 {
		m, _ := md.FindMember(name)
		return binary.LittleEndian.Uint32(u[m.Offset:])
	}
	dt := math.Float32frombits(word("DI000_DeltaTime"))
	off, n := word("DI001_ElementOffset"), word("DI001_NumElements")
	buf := data("DI001_Values")
	for i := off; i < off+n; i++ {
		p := buf[i*components.ParticleStride:]
		x := math.Float32frombits(binary.LittleEndian.Uint32(p))
		binary.LittleEndian.PutUint32(p, math.Float32bits(x+dt))
	}
}

func newTestWorld(t *testing.T) (*World, *rdg.RecordingBackend) {
	t.Helper()
	backend := rdg.NewRecordingBackend()
	backend.Emulate("Advance", emulateAdvance)
	c := Headless()
	c.Backend = backend
	cfg := config.Default()
	cfg.Shader.CompileMode = "sync"
	w, err := New("Test", cfg, WithCompute(c))
	require.NoError(t, err)
	return w, backend
}

func addEmitter(w *World, count, sections int) *components.ParticleBuffer {
	obj := engine.NewGameObject("Emitter")
	pb := components.NewParticleBuffer("Particles", count, sections)
	obj.AddComponent(pb)
	w.Scene.AddGameObject(obj)
	return pb
}

func TestWorldRunsGraphEveryFrame(t *testing.T) {
	w, backend := newTestWorld(t)
	pb := addEmitter(w, 8, 2)
	g := advanceGraph(w, advanceKernel)
	require.True(t, g.IsCompiled(w.FeatureLevel()))

	e := w.Add(g, pb, computegraph.WithOwnerName("Emitter"))
	assert.Equal(t, computegraph.BoundValid, e.Instance.State())

	var ends atomic.Int32
	var passes atomic.Int32
	w.OnFrameEnd.AddListener(func(s FrameStats) {
		ends.Add(1)
		passes.Add(int32(s.Passes))
		assert.NoError(t, s.Err)
	})

	require.NoError(t, w.Run(context.Background(), 4, 0.25))

	assert.Equal(t, int32(4), ends.Load())
	assert.Equal(t, int32(8), passes.Load(), "two sections per frame")
	assert.Len(t, backend.Records(), 8)
	executed, failed := w.Frames()
	assert.Equal(t, uint64(4), executed)
	assert.Zero(t, failed)
	for i, v := range pb.Values() {
		assert.InDelta(t, 1.0, v[0], 1e-6, "particle %d", i)
	}
}

func TestWorldSkipsUncompiledGraph(t *testing.T) {
	w, backend := newTestWorld(t)
	pb := addEmitter(w, 4, 1)
	g := advanceGraph(w, "#error broken\n"+advanceKernel)
	require.False(t, g.IsCompiled(w.FeatureLevel()))

	var fallbacks atomic.Int32
	e := w.Add(g, pb, computegraph.WithFallback(func() { fallbacks.Add(1) }))
	require.NoError(t, w.Run(context.Background(), 2, 0.5))

	assert.Equal(t, computegraph.BoundInvalid, e.Instance.State())
	assert.Zero(t, fallbacks.Load(), "invalid instances enqueue nothing")
	assert.Empty(t, backend.Records())
}

func TestWorldCloseReleasesUnsubmittedGroups(t *testing.T) {
	w, backend := newTestWorld(t)
	pb := addEmitter(w, 4, 1)
	g := advanceGraph(w, advanceKernel)
	w.Add(g, pb, computegraph.WithExecutionGroup("Never"))

	require.NoError(t, w.Run(context.Background(), 3, 0.5))

	stats := w.ComputeWorker().Stats()
	assert.Equal(t, uint64(3), stats.Enqueued)
	assert.Equal(t, uint64(6), stats.Released, "two proxies per frame")
	assert.Empty(t, backend.Records())
	assert.Empty(t, w.ComputeWorker().PendingGroups())
}

func TestWorldCloseRunsFramesPostedBeforeStart(t *testing.T) {
	w, backend := newTestWorld(t)
	pb := addEmitter(w, 4, 1)
	w.Add(advanceGraph(w, advanceKernel), pb)
	var closes int
	w.OnClose.AddListener(func() { closes++ })

	require.NoError(t, w.Update(0.5))
	require.NoError(t, w.Update(0.5))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	stats := w.ComputeWorker().Stats()
	assert.Equal(t, uint64(2), stats.Enqueued)
	assert.Equal(t, uint64(4), stats.Released, "two proxies per frame")
	executed, _ := w.Frames()
	assert.Equal(t, uint64(2), executed)
	assert.Len(t, backend.Records(), 2)
	assert.InDelta(t, 1.0, pb.Values()[0][0], 1e-6)
	assert.Equal(t, 1, closes)
}

func TestWorldRemoveStopsEntry(t *testing.T) {
	w, _ := newTestWorld(t)
	pb := addEmitter(w, 4, 1)
	e := w.Add(advanceGraph(w, advanceKernel), pb)
	w.Remove(e)
	assert.Empty(t, w.Entries())
	assert.Equal(t, computegraph.Unbound, e.Instance.State())
}

func TestUpdateAfterCloseFails(t *testing.T) {
	w, _ := newTestWorld(t)
	w.Start(context.Background())
	require.NoError(t, w.Close())
	assert.Error(t, w.Update(0.1))
}

func TestParseScene(t *testing.T) {
	w, _ := newTestWorld(t)
	err := w.ParseScene([]byte(`
name: Particles
objects:
  - name: Emitter
    position: [1, 2, 3]
    components:
      - type: ParticleBuffer
        props: {count: 32, sections: 4, name: Sparks}
    children:
      - name: Satellite
        scale: [2, 2, 2]
        components:
          - type: Orbiter
            props: {radius: 3, speed: 1.5}
`))
	require.NoError(t, err)
	assert.Equal(t, "Particles", w.Scene.Name)
	require.Len(t, w.Scene.GameObjects, 2)

	emitter := w.Scene.FindByName("Emitter")
	require.NotNil(t, emitter)
	pb := engine.GetComponent[*components.ParticleBuffer](emitter)
	require.NotNil(t, pb)
	assert.Equal(t, 32, pb.Len())
	assert.Len(t, pb.Sections(), 4)

	sat := w.Scene.FindByName("Satellite")
	require.NotNil(t, sat)
	assert.Same(t, emitter, sat.Parent)
	assert.Equal(t, float32(2), sat.Transform.Scale.X)
	assert.Equal(t, float32(1), emitter.Transform.Scale.Y, "scale defaults to one")
}

func TestParseSceneUnknownComponent(t *testing.T) {
	w, _ := newTestWorld(t)
	err := w.ParseScene([]byte(`
objects:
  - name: A
  - name: B
    components:
      - type: Teleporter
`))
	assert.ErrorContains(t, err, "Teleporter")
	assert.Empty(t, w.Scene.GameObjects, "nothing added on error")
}

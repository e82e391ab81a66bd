package computegraph

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"computegraph/internal/rdg"
	"computegraph/internal/rthread"
	"computegraph/internal/shader"

	"github.com/stretchr/testify/require"
)

// proxyCounter counts proxy lifetimes across a test.
type proxyCounter struct {
	created   atomic.Int32
	released  atomic.Int32
	doubles   atomic.Int32
	allocated atomic.Int32
}

// testDI is a configurable data interface with one NumElements scalar
// and, optionally, one float4 buffer.
type testDI struct {
	name     string
	inputs   []shader.FunctionDesc
	outputs  []shader.FunctionDesc
	buffer   bool
	flag     bool
	types    []SourceType
	elements int
	sections int
	counter  *proxyCounter

	// bound records the invocation indices passed to Bindings.
	bound []int
}

func (d *testDI) Name() string { return d.name }
func (d *testDI) SupportedInputs() []shader.FunctionDesc { return d.inputs }
func (d *testDI) SupportedOutputs() []shader.FunctionDesc { return d.outputs }
func (d *testDI) SourceTypes() []SourceType { return d.types }

func (d *testDI) ShaderParameters(uid string, b *shader.StructBuilder) {
	sb := shader.NewStructBuilder().AddParam("NumElements", shader.TypeUInt)
	if d.flag {
		sb.AddParam("Enabled", shader.TypeBool)
	}
	if d.buffer {
		sb.AddBuffer("Values", shader.TypeFloat4, len(d.outputs) > 0)
	}
	b.AddNestedStruct(uid, sb.Build(d.name))
}

func (d *testDI) Source(dl shader.Dialect) string {
	var s string
	if d.flag && dl == shader.WGSL {
		s += "fn DI_LOCAL(IsEnabled)() -> bool { return DI_PARAM(Enabled); }\n"
	}
	for _, f := range d.inputs {
		if dl == shader.WGSL {
			s += fmt.Sprintf("fn DI_LOCAL(%s)(i: u32) -> f32 { return f32(DI_PARAM(NumElements)); }\n", f.Name)
		} else {
			s += fmt.Sprintf("float DI_LOCAL(%s)(uint i) { return DI_PARAM(NumElements); }\n", f.Name)
		}
	}
	for _, f := range d.outputs {
		if dl == shader.WGSL {
			s += fmt.Sprintf("fn DI_LOCAL(%s)(i: u32, v: vec4<f32>) { }\n", f.Name)
		} else {
			s += fmt.Sprintf("void DI_LOCAL(%s)(uint i, float4 v) { }\n", f.Name)
		}
	}
	return s
}

func (d *testDI) CreateDataProvider(sources []any, in, out uint64) DataProvider {
	for _, s := range sources {
		if s == nil {
			return NewInvalidProvider(ErrMissingSource, in, out)
		}
	}
	return &testProvider{ProviderBase: ProviderBase{in, out}, di: d, valid: true}
}

type testProvider struct {
	ProviderBase
	di    *testDI
	valid bool
}

func (p *testProvider) IsValid() bool { return p.valid }

func (p *testProvider) RenderProxy() RenderProxy {
	if p.di.counter != nil {
		p.di.counter.created.Add(1)
	}
	return &testProxy{di: p.di}
}

type testProxy struct {
	di       *testDI
	view     *rdg.BufferView
	released bool
}

func (p *testProxy) AllocateResources(b *rdg.Builder) {
	if p.di.counter != nil {
		p.di.counter.allocated.Add(1)
	}
	if p.di.buffer {
		buf := b.CreateBuffer(rdg.StructuredDesc(16, max(p.di.elements, 1)), p.di.name)
		if len(p.di.outputs) > 0 {
			p.view = b.CreateUAV(buf)
		} else {
			p.view = b.CreateBufferView(buf)
		}
	}
}

func (p *testProxy) InvocationCount() int {
	return max(p.di.sections, 1)
}

func (p *testProxy) DispatchDim(_ int, gs [3]int) [3]int {
	return DispatchDimFor(p.di.elements, gs)
}

func (p *testProxy) Bindings(i int, uid string, out *shader.Bindings) {
	if i < 0 || i >= p.InvocationCount() {
		panic(fmt.Sprintf("%s: invocation %d of %d", p.di.name, i, p.InvocationCount()))
	}
	p.di.bound = append(p.di.bound, i)
	out.Set(uid, "NumElements", uint32(p.di.elements))
	if p.view != nil {
		out.SetBuffer(uid, "Values", p.view)
	}
}

func (p *testProxy) Release() {
	if p.di.counter == nil {
		return
	}
	if p.released {
		p.di.counter.doubles.Add(1)
		return
	}
	p.released = true
	p.di.counter.released.Add(1)
}

var (
	fnReadA  = shader.NewFunction("ReadA", shader.TypeFloat, shader.TypeUInt)
	fnReadB  = shader.NewFunction("ReadB", shader.TypeFloat, shader.TypeUInt)
	fnWrite  = shader.NewFunction("WriteValue", shader.Void, shader.TypeUInt, shader.TypeFloat4)
	fnNoArgs = shader.NewFunction("ReadCount", shader.TypeFloat)
)

const hlslKernel = `[numthreads(64, 1, 1)]
void Main(uint3 id : SV_DispatchThreadID)
{
	float a = ReadA(id.x);
}
`

func hlslSource(inputs, outputs []shader.FunctionDesc) *KernelSource {
	return &KernelSource{
		EntryPoint:      "Main",
		Source:          hlslKernel,
		ExternalInputs:  inputs,
		ExternalOutputs: outputs,
	}
}

// scenarioGraph is one kernel reading ReadA and ReadB from two data
// interfaces.
func scenarioGraph(t *testing.T, counter *proxyCounter) *Graph {
	t.Helper()
	g := NewGraph("Deform")
	g.AddDataInterface(&testDI{name: "A", inputs: []shader.FunctionDesc{fnReadA}, elements: 100, counter: counter})
	g.AddDataInterface(&testDI{name: "B", inputs: []shader.FunctionDesc{fnReadB}, elements: 100, buffer: true, counter: counter})
	g.AddKernel(NewKernel("Main", hlslSource([]shader.FunctionDesc{fnReadA, fnReadB}, nil)))
	g.AddEdge(GraphEdge{KernelIndex: 0, KernelBindingIndex: 0, DataInterfaceIndex: 0, DataInterfaceBindingIndex: 0, IsKernelInput: true})
	g.AddEdge(GraphEdge{KernelIndex: 0, KernelBindingIndex: 1, DataInterfaceIndex: 1, DataInterfaceBindingIndex: 0, IsKernelInput: true})
	return g
}

// testScene runs a render thread for the duration of the test.
type testScene struct {
	worker *TaskWorker
	thread *rthread.Thread
}

func (s *testScene) ComputeWorker() *TaskWorker { return s.worker }
func (s *testScene) RenderThread() *rthread.Thread { return s.thread }

func newTestScene(t *testing.T) *testScene {
	t.Helper()
	th := rthread.New("Render", 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- th.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &testScene{worker: NewTaskWorker(th), thread: th}
}

// onRender runs fn on the scene's render thread and waits for it.
func (s *testScene) onRender(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, s.thread.Enqueue(fn))
	require.NoError(t, s.thread.Flush(context.Background()))
}

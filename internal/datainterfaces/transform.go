package datainterfaces

import (
	"encoding/binary"
	"math"

	"computegraph/internal/computegraph"
	"computegraph/internal/engine"
	"computegraph/internal/rdg"
	"computegraph/internal/shader"

	rl "github.com/gen2brain/raylib-go/raylib"
)

const vec4Stride = 16

// Transform exposes world positions and scales of the bound object's
// children, or of the object itself when it has none or Self is set.
type Transform struct {
	Self bool
}

func (Transform) Name() string { return "Transform" }

func (Transform) SupportedInputs() []shader.FunctionDesc {
	return []shader.FunctionDesc{
		shader.NewFunction("ReadNumObjects", shader.TypeUInt),
		shader.NewFunction("ReadPosition", shader.TypeFloat3, shader.TypeUInt),
		shader.NewFunction("ReadScale", shader.TypeFloat3, shader.TypeUInt),
	}
}

func (Transform) SupportedOutputs() []shader.FunctionDesc { return nil }

func (Transform) ShaderParameters(uid string, b *shader.StructBuilder) {
	s := shader.NewStructBuilder().
		AddParam("NumObjects", shader.TypeUInt).
		AddBuffer("Positions", shader.TypeFloat4, false).
		AddBuffer("Scales", shader.TypeFloat4, false)
	b.AddNestedStruct(uid, s.Build("TransformParameters"))
}

func (Transform) Source(d shader.Dialect) string {
	if d == shader.WGSL {
		return `fn DI_LOCAL(ReadNumObjects)() -> u32 { return DI_PARAM(NumObjects); }
fn DI_LOCAL(ReadPosition)(i: u32) -> vec3<f32> { return DI_LOCAL(Positions)[i].xyz; }
fn DI_LOCAL(ReadScale)(i: u32) -> vec3<f32> { return DI_LOCAL(Scales)[i].xyz; }
`
	}
	return `uint DI_LOCAL(ReadNumObjects)() { return DI_PARAM(NumObjects); }
float3 DI_LOCAL(ReadPosition)(uint i) { return DI_LOCAL(Positions)[i].xyz; }
float3 DI_LOCAL(ReadScale)(uint i) { return DI_LOCAL(Scales)[i].xyz; }
`
}

func (Transform) SourceTypes() []computegraph.SourceType {
	return []computegraph.SourceType{sourceGameObject}
}

func (t Transform) CreateDataProvider(sources []any, in, out uint64) computegraph.DataProvider {
	obj, err := gameObjectSource(sources)
	if err != nil {
		return computegraph.NewInvalidProvider(err, in, out)
	}
	return &transformProvider{ProviderBase: computegraph.ProviderBase{InputMask: in, OutputMask: out}, obj: obj, self: t.Self}
}

type transformProvider struct {
	computegraph.ProviderBase
	obj  *engine.GameObject
	self bool
}

func (p *transformProvider) IsValid() bool { return p.obj != nil }

func (p *transformProvider) objects() []*engine.GameObject {
	if p.self || len(p.obj.Children) == 0 {
		return []*engine.GameObject{p.obj}
	}
	return p.obj.Children
}

// RenderProxy encodes the transforms on the game thread so the render
// thread never reads the scene.
func (p *transformProvider) RenderProxy() computegraph.RenderProxy {
	objs := p.objects()
	px := &transformProxy{
		name:      p.obj.Name,
		count:     len(objs),
		positions: make([]byte, max(len(objs), 1)*vec4Stride),
		scales:    make([]byte, max(len(objs), 1)*vec4Stride),
	}
	for i, o := range objs {
		putVec3(px.positions[i*vec4Stride:], o.WorldPosition())
		putVec3(px.scales[i*vec4Stride:], o.WorldScale())
	}
	return px
}

func putVec3(dst []byte, v rl.Vector3) {
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(v.Z))
	binary.LittleEndian.PutUint32(dst[12:], math.Float32bits(1))
}

type transformProxy struct {
	name              string
	count             int
	positions, scales []byte

	posView, scaleView *rdg.BufferView
}

func (p *transformProxy) AllocateResources(b *rdg.Builder) {
	n := max(p.count, 1)
	pos := b.CreateBuffer(rdg.StructuredDesc(vec4Stride, n), p.name+".Positions")
	scl := b.CreateBuffer(rdg.StructuredDesc(vec4Stride, n), p.name+".Scales")
	b.Upload(pos, p.positions)
	b.Upload(scl, p.scales)
	p.posView = b.CreateBufferView(pos)
	p.scaleView = b.CreateBufferView(scl)
}

func (p *transformProxy) InvocationCount() int { return 1 }

func (p *transformProxy) DispatchDim(_ int, groupSize [3]int) [3]int {
	return computegraph.DispatchDimFor(p.count, groupSize)
}

func (p *transformProxy) Bindings(_ int, uid string, out *shader.Bindings) {
	out.Set(uid, "NumObjects", uint32(p.count))
	out.SetBuffer(uid, "Positions", p.posView)
	out.SetBuffer(uid, "Scales", p.scaleView)
}

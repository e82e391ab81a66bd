package datainterfaces

import (
	"computegraph/internal/components"
	"computegraph/internal/computegraph"
	"computegraph/internal/rdg"
	"computegraph/internal/shader"
)

// ParticleBuffer exposes a components.ParticleBuffer. Each section of the
// buffer is dispatched separately.
type ParticleBuffer struct{}

func (ParticleBuffer) Name() string { return "ParticleBuffer" }

func (ParticleBuffer) SupportedInputs() []shader.FunctionDesc {
	return []shader.FunctionDesc{
		shader.NewFunction("ReadNumElements", shader.TypeUInt),
		shader.NewFunction("ReadValue", shader.TypeFloat4, shader.TypeUInt),
	}
}

func (ParticleBuffer) SupportedOutputs() []shader.FunctionDesc {
	return []shader.FunctionDesc{
		shader.NewFunction("WriteValue", shader.Void, shader.TypeUInt, shader.TypeFloat4),
	}
}

func (ParticleBuffer) ShaderParameters(uid string, b *shader.StructBuilder) {
	s := shader.NewStructBuilder().
		AddParam("NumElements", shader.TypeUInt).
		AddParam("ElementOffset", shader.TypeUInt).
		AddBuffer("Values", shader.TypeFloat4, true)
	b.AddNestedStruct(uid, s.Build("ParticleBufferParameters"))
}

func (ParticleBuffer) Source(d shader.Dialect) string {
	if d == shader.WGSL {
		return `fn DI_LOCAL(ReadNumElements)() -> u32 { return DI_PARAM(NumElements); }
fn DI_LOCAL(ReadValue)(i: u32) -> vec4<f32> { return DI_LOCAL(Values)[DI_PARAM(ElementOffset) + i]; }
fn DI_LOCAL(WriteValue)(i: u32, v: vec4<f32>) { DI_LOCAL(Values)[DI_PARAM(ElementOffset) + i] = v; }
`
	}
	return `uint DI_LOCAL(ReadNumElements)() { return DI_PARAM(NumElements); }
float4 DI_LOCAL(ReadValue)(uint i) { return DI_LOCAL(Values)[DI_PARAM(ElementOffset) + i]; }
void DI_LOCAL(WriteValue)(uint i, float4 v) { DI_LOCAL(Values)[DI_PARAM(ElementOffset) + i] = v; }
`
}

func (ParticleBuffer) SourceTypes() []computegraph.SourceType {
	return []computegraph.SourceType{{Name: "ParticleBuffer"}}
}

func (ParticleBuffer) CreateDataProvider(sources []any, in, out uint64) computegraph.DataProvider {
	if len(sources) == 0 || sources[0] == nil {
		return computegraph.NewInvalidProvider(computegraph.ErrMissingSource, in, out)
	}
	pb, ok := sources[0].(*components.ParticleBuffer)
	if !ok || pb == nil {
		return computegraph.NewInvalidProvider(computegraph.ErrSourceTypeMismatch, in, out)
	}
	return &particleProvider{ProviderBase: computegraph.ProviderBase{InputMask: in, OutputMask: out}, pb: pb}
}

type particleProvider struct {
	computegraph.ProviderBase
	pb *components.ParticleBuffer
}

func (p *particleProvider) IsValid() bool { return p.pb != nil }

func (p *particleProvider) RenderProxy() computegraph.RenderProxy {
	data, version := p.pb.Snapshot()
	return &particleProxy{
		pb:       p.pb,
		data:     data,
		version:  version,
		sections: p.pb.Sections(),
		readback: p.OutputConnected(0),
	}
}

type particleProxy struct {
	pb       *components.ParticleBuffer
	data     []byte
	version  uint64
	sections []components.Section
	readback bool

	view *rdg.BufferView
}

func (p *particleProxy) AllocateResources(b *rdg.Builder) {
	buf := b.RegisterBuffer(p.pb.ExternalBuffer())
	if p.data != nil && p.pb.ClaimUpload(p.version) {
		b.Upload(buf, p.data)
	}
	if p.readback {
		pb, version := p.pb, p.version
		b.QueueReadback(buf, func(data []byte) { pb.StoreReadback(data, version) })
	}
	p.view = b.CreateUAV(buf)
}

func (p *particleProxy) InvocationCount() int { return len(p.sections) }

func (p *particleProxy) DispatchDim(i int, groupSize [3]int) [3]int {
	return computegraph.DispatchDimFor(p.sections[i].Count, groupSize)
}

func (p *particleProxy) Bindings(i int, uid string, out *shader.Bindings) {
	s := p.sections[i]
	out.Set(uid, "NumElements", uint32(s.Count))
	out.Set(uid, "ElementOffset", uint32(s.Offset))
	out.SetBuffer(uid, "Values", p.view)
}

// Release drops the proxy's references to the component.
func (p *particleProxy) Release() {
	p.pb, p.data, p.view = nil, nil, nil
}

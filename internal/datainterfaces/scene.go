// Package datainterfaces holds the data interfaces engine objects expose
// to compute graphs.
package datainterfaces

import (
	"computegraph/internal/computegraph"
	"computegraph/internal/engine"
	"computegraph/internal/rdg"
	"computegraph/internal/shader"
)

var sourceGameObject = computegraph.SourceType{Name: "GameObject"}

// Scene exposes the game clock of the bound object's scene.
type Scene struct{}

func (Scene) Name() string { return "Scene" }

func (Scene) SupportedInputs() []shader.FunctionDesc {
	return []shader.FunctionDesc{
		shader.NewFunction("ReadGameTime", shader.TypeFloat),
		shader.NewFunction("ReadDeltaTime", shader.TypeFloat),
		shader.NewFunction("ReadFrameNumber", shader.TypeUInt),
	}
}

func (Scene) SupportedOutputs() []shader.FunctionDesc { return nil }

func (Scene) ShaderParameters(uid string, b *shader.StructBuilder) {
	s := shader.NewStructBuilder().
		AddParam("GameTime", shader.TypeFloat).
		AddParam("DeltaTime", shader.TypeFloat).
		AddParam("FrameNumber", shader.TypeUInt)
	b.AddNestedStruct(uid, s.Build("SceneParameters"))
}

func (Scene) Source(d shader.Dialect) string {
	if d == shader.WGSL {
		return `fn DI_LOCAL(ReadGameTime)() -> f32 { return DI_PARAM(GameTime); }
fn DI_LOCAL(ReadDeltaTime)() -> f32 { return DI_PARAM(DeltaTime); }
fn DI_LOCAL(ReadFrameNumber)() -> u32 { return DI_PARAM(FrameNumber); }
`
	}
	return `float DI_LOCAL(ReadGameTime)() { return DI_PARAM(GameTime); }
float DI_LOCAL(ReadDeltaTime)() { return DI_PARAM(DeltaTime); }
uint DI_LOCAL(ReadFrameNumber)() { return DI_PARAM(FrameNumber); }
`
}

func (Scene) SourceTypes() []computegraph.SourceType {
	return []computegraph.SourceType{sourceGameObject}
}

func (Scene) CreateDataProvider(sources []any, in, out uint64) computegraph.DataProvider {
	obj, err := gameObjectSource(sources)
	if err != nil {
		return computegraph.NewInvalidProvider(err, in, out)
	}
	return &sceneProvider{ProviderBase: computegraph.ProviderBase{InputMask: in, OutputMask: out}, obj: obj}
}

type sceneProvider struct {
	computegraph.ProviderBase
	obj *engine.GameObject
}

// IsValid requires the object to still be in a scene.
func (p *sceneProvider) IsValid() bool {
	return p.obj.Scene != nil
}

func (p *sceneProvider) RenderProxy() computegraph.RenderProxy {
	s := p.obj.Scene
	if s == nil {
		return &sceneProxy{}
	}
	return &sceneProxy{time: s.Time, delta: s.DeltaTime, frame: s.FrameNumber}
}

type sceneProxy struct {
	time, delta float32
	frame       uint32
}

func (p *sceneProxy) AllocateResources(*rdg.Builder) {}

func (p *sceneProxy) InvocationCount() int { return 1 }

func (p *sceneProxy) DispatchDim(int, [3]int) [3]int { return [3]int{1, 1, 1} }

func (p *sceneProxy) Bindings(_ int, uid string, out *shader.Bindings) {
	out.Set(uid, "GameTime", p.time)
	out.Set(uid, "DeltaTime", p.delta)
	out.Set(uid, "FrameNumber", p.frame)
}

func gameObjectSource(sources []any) (*engine.GameObject, error) {
	if len(sources) == 0 || sources[0] == nil {
		return nil, computegraph.ErrMissingSource
	}
	obj, ok := sources[0].(*engine.GameObject)
	if !ok || obj == nil {
		return nil, computegraph.ErrSourceTypeMismatch
	}
	return obj, nil
}

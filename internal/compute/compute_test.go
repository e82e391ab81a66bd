package compute

import (
	"context"
	"testing"

	"computegraph/internal/rdg"
	"computegraph/internal/shader"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutFor(t *testing.T) {
	md := shader.NewStructBuilder().
		AddParam("Count", shader.TypeUInt).
		AddNestedStruct("DI000", shader.NewStructBuilder().
			AddBuffer("In", shader.TypeFloat4, false).
			AddBuffer("Out", shader.TypeFloat4, true).
			Build("Inner")).
		Build("Params")

	assert.Equal(t, []BindingKind{BindUniform, BindReadOnlyStorage, BindStorage}, LayoutFor(md))
	assert.Equal(t, []BindingKind{BindUniform}, LayoutFor(nil))
}

func TestUsageOf(t *testing.T) {
	got := usageOf(rdg.UsageStorage | rdg.UsageCopySrc)
	assert.Equal(t, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc, got)
	assert.Zero(t, usageOf(0))
}

func TestCompilerRejectsHLSL(t *testing.T) {
	c := NewCompiler(nil)
	_, err := c.Compile(context.Background(), &shader.CompileJob{
		FriendlyName: "G/K",
		EntryPoint:   "Main",
		Dialect:      shader.HLSL,
	})
	var cf *shader.CompileFailure
	require.ErrorAs(t, err, &cf)
	assert.Contains(t, cf.Diagnostics[0], "wgsl")
}

func TestPipelineKey(t *testing.T) {
	k := PipelineKey{Hash: "abc", EntryPoint: "Main"}
	assert.Equal(t, "abc:Main", k.String())
}

func TestBackendRejectsForeignHandles(t *testing.T) {
	b := NewBackend(nil)
	assert.Error(t, b.WriteBuffer("nope", 0, []byte{1}))
	_, err := b.ReadBuffer(context.Background(), 42)
	assert.Error(t, err)
	b.ReleaseBuffer(nil)

	err = b.Dispatch(context.Background(), &rdg.ComputePass{Name: "p", Shader: &shader.ShaderMap{}})
	assert.ErrorContains(t, err, "not compiled for webgpu")
}

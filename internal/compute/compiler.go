package compute

import (
	"context"
	"fmt"

	"computegraph/internal/shader"
)

// PlatformWebGPU is the shader platform of kernels compiled by [Compiler].
const PlatformWebGPU shader.Platform = "WebGPU"

// Compiler compiles WGSL kernels into wgpu compute pipelines.
type Compiler struct {
	System *System
}

// NewCompiler returns a compiler creating pipelines on s.
func NewCompiler(s *System) *Compiler {
	return &Compiler{System: s}
}

// Compile implements [shader.Compiler]. The pipeline layout is derived
// from the job metadata: the uniform block at binding 0 followed by one
// storage buffer per buffer member.
func (c *Compiler) Compile(ctx context.Context, job *shader.CompileJob) (*shader.ShaderMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if job.Dialect != shader.WGSL {
		return nil, &shader.CompileFailure{Diagnostics: []string{
			fmt.Sprintf("%s: webgpu requires wgsl source, got %s", job.FriendlyName, job.Dialect),
		}}
	}
	p, err := c.System.CreatePipeline(
		PipelineKey{Hash: job.Hash.String(), EntryPoint: job.EntryPoint},
		job.FriendlyName, job.Source, LayoutFor(job.Metadata))
	if err != nil {
		return nil, &shader.CompileFailure{Diagnostics: []string{err.Error()}}
	}
	return &shader.ShaderMap{
		Hash:         job.Hash,
		EntryPoint:   job.EntryPoint,
		Platform:     job.Platform,
		FeatureLevel: job.FeatureLevel,
		Metadata:     job.Metadata,
		GroupSize:    job.GroupSize,
		Pipeline:     p,
	}, nil
}

// LayoutFor returns the bind group slot kinds of md.
func LayoutFor(md *shader.ParametersMetadata) []BindingKind {
	out := []BindingKind{BindUniform}
	if md == nil {
		return out
	}
	for _, b := range md.Buffers() {
		if b.Writable {
			out = append(out, BindStorage)
		} else {
			out = append(out, BindReadOnlyStorage)
		}
	}
	return out
}

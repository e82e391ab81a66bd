package compute

import (
	"context"
	"fmt"

	"computegraph/internal/rdg"

	"github.com/cogentcore/webgpu/wgpu"
)

// minUniformSize is the smallest uniform buffer wgpu accepts for a
// struct binding.
const minUniformSize = 16

// Backend realizes render graph buffers and passes on a System.
type Backend struct {
	System *System
}

// NewBackend returns a backend dispatching on s.
func NewBackend(s *System) *Backend {
	return &Backend{System: s}
}

func usageOf(u rdg.Usage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&rdg.UsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&rdg.UsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&rdg.UsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	if u&rdg.UsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	return out
}

// AllocateBuffer implements [rdg.Backend].
func (b *Backend) AllocateBuffer(buf *rdg.Buffer) (any, error) {
	// Storage buffers must be 4-byte aligned and non-empty.
	size := uint64(max(buf.Desc.Size(), 4)+3) &^ 3
	return b.System.CreateBuffer(buf.Name, size, usageOf(buf.Desc.Usage)|wgpu.BufferUsageCopyDst)
}

// WriteBuffer implements [rdg.Backend].
func (b *Backend) WriteBuffer(handle any, offset int, data []byte) error {
	buf, ok := handle.(*Buffer)
	if !ok {
		return fmt.Errorf("compute: unknown buffer handle %T", handle)
	}
	if uint64(offset+len(data)) > buf.size {
		return fmt.Errorf("compute: write of %d bytes at %d overflows %d byte buffer", len(data), offset, buf.size)
	}
	b.System.WriteBuffer(buf, uint64(offset), data)
	return nil
}

// Dispatch implements [rdg.Backend]. The uniform block is uploaded to a
// buffer that lives for the dispatch only.
func (b *Backend) Dispatch(ctx context.Context, pass *rdg.ComputePass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pass.Shader == nil {
		return fmt.Errorf("compute: pass %s has no shader", pass.Name)
	}
	p, ok := pass.Shader.Pipeline.(*Pipeline)
	if !ok {
		return fmt.Errorf("compute: pass %s was not compiled for webgpu", pass.Name)
	}

	data := pass.Bindings.PackUniform()
	if len(data) < minUniformSize {
		data = append(data, make([]byte, minUniformSize-len(data))...)
	}
	uniform, err := b.System.CreateBufferWithData(pass.Name+"_params", data, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	defer uniform.Release()

	buffers := []*Buffer{uniform}
	for _, m := range pass.Bindings.Metadata().Buffers() {
		bound, ok := pass.Bindings.Buffer(m.Name)
		if !ok {
			return fmt.Errorf("compute: pass %s: buffer %s not bound", pass.Name, m.Name)
		}
		view, ok := bound.(*rdg.BufferView)
		if !ok {
			return fmt.Errorf("compute: pass %s: buffer %s has binding %T", pass.Name, m.Name, bound)
		}
		gpu, ok := view.Buffer.Handle().(*Buffer)
		if !ok {
			return fmt.Errorf("compute: pass %s: buffer %s is not allocated", pass.Name, m.Name)
		}
		buffers = append(buffers, gpu)
	}

	return b.System.Dispatch(DispatchParams{
		Label:       pass.Name,
		Pipeline:    p,
		Buffers:     buffers,
		WorkgroupsX: uint32(pass.GroupCount[0]),
		WorkgroupsY: uint32(pass.GroupCount[1]),
		WorkgroupsZ: uint32(pass.GroupCount[2]),
	})
}

// ReadBuffer implements [rdg.Backend]. It blocks until the GPU is idle.
func (b *Backend) ReadBuffer(ctx context.Context, handle any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, ok := handle.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("compute: unknown buffer handle %T", handle)
	}
	return b.System.ReadBuffer(buf)
}

// ReleaseBuffer implements [rdg.Backend].
func (b *Backend) ReleaseBuffer(handle any) {
	if buf, ok := handle.(*Buffer); ok {
		buf.Release()
	}
}

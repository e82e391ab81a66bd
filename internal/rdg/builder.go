// Package rdg is a small render-graph builder. Data providers declare the
// buffers and views they need while the scheduler records compute passes;
// Execute then realizes everything on a Backend in recording order.
package rdg

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"computegraph/internal/shader"
)

// Usage flags describe how a buffer is used by the GPU.
type Usage uint32

const (
	UsageStorage Usage = 1 << iota
	UsageUniform
	UsageCopySrc
	UsageCopyDst
)

// BufferDesc describes a structured buffer.
type BufferDesc struct {
	BytesPerElement int
	NumElements     int
	Usage           Usage
}

// Size is the buffer size in bytes.
func (d BufferDesc) Size() int {
	return d.BytesPerElement * d.NumElements
}

// StructuredDesc is a storage buffer description for n elements of size bytes.
func StructuredDesc(size, n int) BufferDesc {
	return BufferDesc{BytesPerElement: size, NumElements: n, Usage: UsageStorage | UsageCopySrc | UsageCopyDst}
}

// Buffer is a buffer known to one Builder. Transient buffers are
// allocated in Execute and released when it returns; registered
// buffers wrap an [ExternalBuffer] and persist across builders.
type Buffer struct {
	Name string
	Desc BufferDesc

	external *ExternalBuffer
	handle   any
}

// IsExternal reports whether the buffer was registered from an ExternalBuffer.
func (b *Buffer) IsExternal() bool {
	return b.external != nil
}

// Handle returns the backend object once the buffer is allocated.
func (b *Buffer) Handle() any {
	if b.external != nil {
		return b.external.handle
	}
	return b.handle
}

// ExternalBuffer is a persistent GPU buffer owned outside the builder,
// e.g. by an engine component, allocated lazily on first use.
type ExternalBuffer struct {
	Name string
	Desc BufferDesc

	mu      sync.Mutex
	handle  any
	backend Backend
}

// NewExternalBuffer returns an unallocated persistent buffer.
func NewExternalBuffer(name string, desc BufferDesc) *ExternalBuffer {
	return &ExternalBuffer{Name: name, Desc: desc}
}

// IsAllocated reports whether a backend has allocated the buffer.
func (e *ExternalBuffer) IsAllocated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

// Release frees the backend allocation, if any.
func (e *ExternalBuffer) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != nil {
		e.backend.ReleaseBuffer(e.handle)
		e.handle, e.backend = nil, nil
	}
}

// BufferView is a shader-visible view of a buffer.
type BufferView struct {
	Buffer   *Buffer
	writable bool
}

// IsWritable implements [shader.BufferBinding].
func (v *BufferView) IsWritable() bool {
	return v.writable
}

// ComputePass is one GPU dispatch.
type ComputePass struct {
	Name       string
	Shader     *shader.ShaderMap
	Bindings   *shader.Bindings
	GroupCount [3]int
}

// Backend realizes buffers and dispatches.
type Backend interface {
	AllocateBuffer(buf *Buffer) (any, error)
	WriteBuffer(handle any, offset int, data []byte) error
	Dispatch(ctx context.Context, pass *ComputePass) error
	ReadBuffer(ctx context.Context, handle any) ([]byte, error)
	ReleaseBuffer(handle any)
}

type upload struct {
	buf  *Buffer
	data []byte
}

type readback struct {
	buf *Buffer
	fn  func([]byte)
}

// Builder records resources and passes for one frame.
// It is used from the render thread only.
type Builder struct {
	backend   Backend
	buffers   []*Buffer
	external  map[*ExternalBuffer]*Buffer
	uploads   []upload
	passes    []*ComputePass
	readbacks []readback
	executed  bool
}

// NewBuilder returns an empty builder executing on backend.
func NewBuilder(backend Backend) *Builder {
	return &Builder{backend: backend, external: map[*ExternalBuffer]*Buffer{}}
}

// CreateBuffer declares a transient buffer.
func (b *Builder) CreateBuffer(desc BufferDesc, name string) *Buffer {
	buf := &Buffer{Name: name, Desc: desc}
	b.buffers = append(b.buffers, buf)
	return buf
}

// RegisterBuffer makes a persistent buffer usable in this builder.
// Registering the same buffer twice returns the same Buffer.
func (b *Builder) RegisterBuffer(ext *ExternalBuffer) *Buffer {
	if buf, ok := b.external[ext]; ok {
		return buf
	}
	buf := &Buffer{Name: ext.Name, Desc: ext.Desc, external: ext}
	b.external[ext] = buf
	b.buffers = append(b.buffers, buf)
	return buf
}

// CreateBufferView returns a read-only view of buf.
func (b *Builder) CreateBufferView(buf *Buffer) *BufferView {
	return &BufferView{Buffer: buf}
}

// CreateUAV returns a read-write view of buf.
func (b *Builder) CreateUAV(buf *Buffer) *BufferView {
	return &BufferView{Buffer: buf, writable: true}
}

// Upload schedules data to be written to buf before any pass runs.
func (b *Builder) Upload(buf *Buffer, data []byte) {
	b.uploads = append(b.uploads, upload{buf, data})
}

// AddComputePass appends a dispatch.
func (b *Builder) AddComputePass(pass *ComputePass) {
	b.passes = append(b.passes, pass)
}

// QueueReadback schedules fn to receive the contents of buf after all passes ran.
func (b *Builder) QueueReadback(buf *Buffer, fn func([]byte)) {
	b.readbacks = append(b.readbacks, readback{buf, fn})
}

// Passes returns the recorded passes in order.
func (b *Builder) Passes() []*ComputePass {
	return b.passes
}

// Buffers returns the declared buffers in order.
func (b *Builder) Buffers() []*Buffer {
	return b.buffers
}

// Execute allocates buffers, runs uploads, dispatches passes in order,
// delivers readbacks and releases transient buffers.
// A builder can be executed once.
func (b *Builder) Execute(ctx context.Context) error {
	if b.executed {
		return errors.New("rdg: builder already executed")
	}
	b.executed = true
	defer b.releaseTransient()

	for _, buf := range b.buffers {
		if err := b.allocate(buf); err != nil {
			return err
		}
	}
	for _, u := range b.uploads {
		if err := b.backend.WriteBuffer(u.buf.Handle(), 0, u.data); err != nil {
			return fmt.Errorf("rdg: upload %s: %w", u.buf.Name, err)
		}
	}
	var errs []error
	for _, p := range b.passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.backend.Dispatch(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("rdg: pass %s: %w", p.Name, err))
		}
	}
	for _, r := range b.readbacks {
		data, err := b.backend.ReadBuffer(ctx, r.buf.Handle())
		if err != nil {
			errs = append(errs, fmt.Errorf("rdg: readback %s: %w", r.buf.Name, err))
			continue
		}
		r.fn(data)
	}
	return errors.Join(errs...)
}

func (b *Builder) allocate(buf *Buffer) error {
	if ext := buf.external; ext != nil {
		ext.mu.Lock()
		defer ext.mu.Unlock()
		if ext.handle != nil {
			return nil
		}
		h, err := b.backend.AllocateBuffer(buf)
		if err != nil {
			return fmt.Errorf("rdg: allocate %s: %w", buf.Name, err)
		}
		ext.handle, ext.backend = h, b.backend
		return nil
	}
	h, err := b.backend.AllocateBuffer(buf)
	if err != nil {
		return fmt.Errorf("rdg: allocate %s: %w", buf.Name, err)
	}
	buf.handle = h
	return nil
}

func (b *Builder) releaseTransient() {
	for _, buf := range b.buffers {
		if buf.external == nil && buf.handle != nil {
			b.backend.ReleaseBuffer(buf.handle)
			buf.handle = nil
		}
	}
}

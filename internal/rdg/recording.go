package rdg

import (
	"context"
	"fmt"
	"sync"
)

// DispatchRecord is one dispatch seen by a RecordingBackend.
type DispatchRecord struct {
	Pass       string
	EntryPoint string
	GroupCount [3]int
	Uniform    []byte

	// Buffers maps flattened member names to bound buffer names.
	Buffers map[string]string
}

// EmulateFunc runs a kernel on the CPU. data returns the live bytes of
// the buffer bound to a flattened member name, or nil.
type EmulateFunc func(pass *ComputePass, data func(member string) []byte)

type memBuffer struct {
	name string
	data []byte
}

// RecordingBackend keeps buffers in CPU memory and records dispatches.
// Kernels registered with Emulate are executed on the CPU; all others
// only leave a record. It backs headless runs and tests.
type RecordingBackend struct {
	mu        sync.Mutex
	records   []DispatchRecord
	emulate   map[string]EmulateFunc
	allocated int
	released  int
}

// NewRecordingBackend returns an empty backend.
func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{emulate: map[string]EmulateFunc{}}
}

// Emulate registers a CPU implementation for the kernel entry point.
func (r *RecordingBackend) Emulate(entryPoint string, fn EmulateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emulate[entryPoint] = fn
}

// AllocateBuffer implements [Backend].
func (r *RecordingBackend) AllocateBuffer(buf *Buffer) (any, error) {
	if buf.Desc.Size() < 0 {
		return nil, fmt.Errorf("negative size for %s", buf.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocated++
	return &memBuffer{name: buf.Name, data: make([]byte, buf.Desc.Size())}, nil
}

// WriteBuffer implements [Backend].
func (r *RecordingBackend) WriteBuffer(handle any, offset int, data []byte) error {
	mb, ok := handle.(*memBuffer)
	if !ok {
		return fmt.Errorf("unknown buffer handle %T", handle)
	}
	if offset+len(data) > len(mb.data) {
		return fmt.Errorf("write of %d bytes at %d overflows %s (%d bytes)", len(data), offset, mb.name, len(mb.data))
	}
	copy(mb.data[offset:], data)
	return nil
}

// Dispatch implements [Backend].
func (r *RecordingBackend) Dispatch(ctx context.Context, pass *ComputePass) error {
	rec := DispatchRecord{
		Pass:       pass.Name,
		GroupCount: pass.GroupCount,
		Buffers:    map[string]string{},
	}
	if pass.Shader != nil {
		rec.EntryPoint = pass.Shader.EntryPoint
	}
	if pass.Bindings != nil {
		rec.Uniform = pass.Bindings.PackUniform()
		for _, m := range pass.Bindings.Metadata().Buffers() {
			if v, ok := pass.Bindings.Buffer(m.Name); ok {
				if bv, ok := v.(*BufferView); ok {
					rec.Buffers[m.Name] = bv.Buffer.Name
				}
			}
		}
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	fn := r.emulate[rec.EntryPoint]
	r.mu.Unlock()
	if fn != nil && pass.Bindings != nil {
		fn(pass, func(member string) []byte {
			v, ok := pass.Bindings.Buffer(member)
			if !ok {
				return nil
			}
			bv, ok := v.(*BufferView)
			if !ok {
				return nil
			}
			mb, _ := bv.Buffer.Handle().(*memBuffer)
			if mb == nil {
				return nil
			}
			return mb.data
		})
	}
	return nil
}

// ReadBuffer implements [Backend].
func (r *RecordingBackend) ReadBuffer(ctx context.Context, handle any) ([]byte, error) {
	mb, ok := handle.(*memBuffer)
	if !ok {
		return nil, fmt.Errorf("unknown buffer handle %T", handle)
	}
	return append([]byte(nil), mb.data...), nil
}

// ReleaseBuffer implements [Backend].
func (r *RecordingBackend) ReleaseBuffer(handle any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released++
}

// Records returns a copy of the dispatch records.
func (r *RecordingBackend) Records() []DispatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DispatchRecord(nil), r.records...)
}

// Reset clears the dispatch records.
func (r *RecordingBackend) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}

// Live returns the number of buffers allocated and not yet released.
func (r *RecordingBackend) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocated - r.released
}

package components

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"computegraph/internal/engine"
	"computegraph/internal/rdg"
)

func init() {
	engine.RegisterComponentType("ParticleBuffer", particleBufferFactory)
}

// ParticleStride is the size of one particle value (float4) in bytes.
const ParticleStride = 16

// Section is a contiguous run of particles dispatched together.
type Section struct {
	Offset int
	Count  int
}

// ParticleBuffer holds float4 particle values on the CPU and mirrors them
// in a persistent GPU buffer. The game thread writes values; the render
// thread uploads them and stores read-backs, so access is guarded.
type ParticleBuffer struct {
	engine.BaseComponent

	mu       sync.Mutex
	values   [][4]float32
	sections []Section
	version  uint64
	uploaded uint64
	readback uint64

	buffer *rdg.ExternalBuffer
}

// NewParticleBuffer returns a buffer of count zero values split into
// sections of roughly equal size.
func NewParticleBuffer(name string, count, sections int) *ParticleBuffer {
	if count < 0 {
		count = 0
	}
	if sections < 1 {
		sections = 1
	}
	if sections > count && count > 0 {
		sections = count
	}
	p := &ParticleBuffer{
		values:  make([][4]float32, count),
		version: 1,
		buffer:  rdg.NewExternalBuffer(name, rdg.StructuredDesc(ParticleStride, max(count, 1))),
	}
	per := (count + sections - 1) / sections
	for off := 0; off < count; off += per {
		p.sections = append(p.sections, Section{Offset: off, Count: min(per, count-off)})
	}
	if count == 0 {
		p.sections = []Section{{}}
	}
	return p
}

func particleBufferFactory(props map[string]any) (engine.Component, error) {
	count := propInt(props, "count", 0)
	if count < 0 {
		return nil, fmt.Errorf("count %d is negative", count)
	}
	name, _ := props["name"].(string)
	if name == "" {
		name = "Particles"
	}
	return NewParticleBuffer(name, count, propInt(props, "sections", 1)), nil
}

// Len returns the number of particles.
func (p *ParticleBuffer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}

// Sections returns the dispatch sections.
func (p *ParticleBuffer) Sections() []Section {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Section(nil), p.sections...)
}

// Values returns a copy of the CPU values.
func (p *ParticleBuffer) Values() [][4]float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][4]float32(nil), p.values...)
}

// SetValues replaces the CPU values. The length must not change.
func (p *ParticleBuffer) SetValues(values [][4]float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(values) != len(p.values) {
		return fmt.Errorf("particle buffer holds %d values, got %d", len(p.values), len(values))
	}
	copy(p.values, values)
	p.version++
	return nil
}

// ExternalBuffer returns the persistent GPU buffer.
func (p *ParticleBuffer) ExternalBuffer() *rdg.ExternalBuffer {
	return p.buffer
}

// Snapshot returns the encoded values if they changed since the last
// upload, with the version they belong to.
func (p *ParticleBuffer) Snapshot() ([]byte, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.version == p.uploaded {
		return nil, p.version
	}
	data := make([]byte, len(p.values)*ParticleStride)
	for i, v := range p.values {
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(data[i*ParticleStride+4*c:], math.Float32bits(v[c]))
		}
	}
	return data, p.version
}

// ClaimUpload records that version is being made resident on the GPU. It
// returns false when that version or a newer one already is, so a
// snapshot taken before an earlier frame executed is not uploaded again.
func (p *ParticleBuffer) ClaimUpload(version uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if version <= p.uploaded {
		return false
	}
	p.uploaded = version
	return true
}

// StoreReadback decodes GPU contents into the CPU values. Values written
// on the CPU after the read-back was scheduled win.
func (p *ParticleBuffer) StoreReadback(data []byte, version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if version != p.version {
		return
	}
	n := min(len(p.values), len(data)/ParticleStride)
	for i := 0; i < n; i++ {
		for c := 0; c < 4; c++ {
			p.values[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*ParticleStride+4*c:]))
		}
	}
	p.readback++
}

// Readbacks returns the number of read-backs stored.
func (p *ParticleBuffer) Readbacks() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readback
}

// Release frees the GPU buffer.
func (p *ParticleBuffer) Release() {
	p.buffer.Release()
	p.mu.Lock()
	p.uploaded = 0
	p.mu.Unlock()
}

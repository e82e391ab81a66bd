package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// BufferBinding is a GPU buffer resource bound to a buffer member.
// rdg.BufferView implements it.
type BufferBinding interface {
	IsWritable() bool
}

// Bindings holds the parameter values gathered for one dispatch.
// Values are checked against the metadata; problems are collected
// and reported by [Bindings.Err] rather than panicking.
type Bindings struct {
	md      *ParametersMetadata
	scalars map[string][]uint32
	buffers map[string]BufferBinding
	errs    []error
}

// NewBindings returns an empty value set for md.
func NewBindings(md *ParametersMetadata) *Bindings {
	return &Bindings{
		md:      md,
		scalars: map[string][]uint32{},
		buffers: map[string]BufferBinding{},
	}
}

// Metadata returns the layout the bindings are checked against.
func (b *Bindings) Metadata() *ParametersMetadata {
	return b.md
}

// MemberName joins a nested struct uid and a member name into the
// flattened member name. An empty uid names a top-level member.
func MemberName(uid, member string) string {
	if uid == "" {
		return member
	}
	return uid + "_" + member
}

// Set assigns a scalar or vector value to member of the nested struct uid.
// Accepted Go types are bool, int32, uint32, float32 and arrays of
// 2 to 4 int32, uint32 or float32.
func (b *Bindings) Set(uid, member string, v any) {
	name := MemberName(uid, member)
	m, ok := b.md.FindMember(name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("shader: %s has no member %q", b.md.Name, name))
		return
	}
	if m.Kind != MemberScalar {
		b.errs = append(b.errs, fmt.Errorf("shader: member %q is not a scalar", name))
		return
	}
	t, words, ok := encodeValue(v)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("shader: unsupported value %T for %q", v, name))
		return
	}
	if t != m.Type {
		b.errs = append(b.errs, fmt.Errorf("shader: member %q is %s, got %s", name, m.Type, t))
		return
	}
	b.scalars[name] = words
}

// SetBuffer binds a buffer resource to a buffer member of the nested struct uid.
func (b *Bindings) SetBuffer(uid, member string, v BufferBinding) {
	name := MemberName(uid, member)
	m, ok := b.md.FindMember(name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("shader: %s has no member %q", b.md.Name, name))
		return
	}
	if m.Kind != MemberBuffer {
		b.errs = append(b.errs, fmt.Errorf("shader: member %q is not a buffer", name))
		return
	}
	if v == nil {
		b.errs = append(b.errs, fmt.Errorf("shader: nil buffer for %q", name))
		return
	}
	if m.Writable && !v.IsWritable() {
		b.errs = append(b.errs, fmt.Errorf("shader: member %q needs a writable view", name))
		return
	}
	b.buffers[name] = v
}

// Buffer returns the buffer bound to the flattened member name.
func (b *Bindings) Buffer(name string) (BufferBinding, bool) {
	v, ok := b.buffers[name]
	return v, ok
}

// IsSet reports whether the flattened member name has a value.
func (b *Bindings) IsSet(name string) bool {
	if _, ok := b.scalars[name]; ok {
		return true
	}
	_, ok := b.buffers[name]
	return ok
}

// Missing returns the buffer members that have no resource bound.
// Unset scalars are zero in the uniform block and are not reported.
func (b *Bindings) Missing() []string {
	var out []string
	for _, m := range b.md.Buffers() {
		if _, ok := b.buffers[m.Name]; !ok {
			out = append(out, m.Name)
		}
	}
	return out
}

// Err returns all problems recorded while setting values.
func (b *Bindings) Err() error {
	return errors.Join(b.errs...)
}

// PackUniform returns the uniform block bytes, little endian,
// laid out at the metadata offsets.
func (b *Bindings) PackUniform() []byte {
	out := make([]byte, b.md.UniformSize())
	for _, m := range b.md.Scalars() {
		words, ok := b.scalars[m.Name]
		if !ok {
			continue
		}
		for i, w := range words {
			binary.LittleEndian.PutUint32(out[m.Offset+4*i:], w)
		}
	}
	return out
}

func boolWord(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func encodeValue(v any) (Type, []uint32, bool) {
	switch x := v.(type) {
	case bool:
		return TypeBool, []uint32{boolWord(x)}, true
	case int32:
		return TypeInt, []uint32{uint32(x)}, true
	case uint32:
		return TypeUInt, []uint32{x}, true
	case float32:
		return TypeFloat, []uint32{math.Float32bits(x)}, true
	case [2]float32:
		return floats(x[:])
	case [3]float32:
		return floats(x[:])
	case [4]float32:
		return floats(x[:])
	case [2]uint32:
		return Type{UInt, 2}, x[:], true
	case [3]uint32:
		return Type{UInt, 3}, x[:], true
	case [4]uint32:
		return Type{UInt, 4}, x[:], true
	case [3]int32:
		w := make([]uint32, 3)
		for i, e := range x {
			w[i] = uint32(e)
		}
		return TypeInt3, w, true
	}
	return Void, nil, false
}

func floats(x []float32) (Type, []uint32, bool) {
	w := make([]uint32, len(x))
	for i, f := range x {
		w[i] = math.Float32bits(f)
	}
	return Type{Float, len(x)}, w, true
}

package shader

import (
	"fmt"
)

// MemberKind distinguishes the members of a parameter struct.
type MemberKind int

const (
	// MemberScalar is a scalar or vector value placed in the uniform block.
	MemberScalar MemberKind = iota

	// MemberBuffer is a structured buffer bound as its own resource.
	MemberBuffer

	// MemberStruct is a nested parameter struct, usually one per data interface.
	MemberStruct
)

// Param is a named scalar shader parameter declared by a kernel.
type Param struct {
	Name string
	Type Type
}

// Member is one entry of a [ParametersMetadata].
type Member struct {
	Name string
	Kind MemberKind

	// Type is the value type for scalars and the element type for buffers.
	Type Type

	// Writable marks read-write buffers.
	Writable bool

	// Struct is the nested struct for MemberStruct.
	Struct *ParametersMetadata
}

// FlatMember is a leaf member of a parameter struct with nested structs
// resolved. Names of nested members are joined with "_", so member
// NumElements of nested struct DI000 is named "DI000_NumElements".
type FlatMember struct {
	Name     string
	Kind     MemberKind
	Type     Type
	Writable bool

	// Offset is the byte offset inside the uniform block for scalars, -1 for buffers.
	Offset int

	// Binding is the resource slot for buffers. Slot 0 is the uniform block,
	// so buffers start at 1. Scalars report 0.
	Binding int
}

// ParametersMetadata is the immutable layout of a shader parameter struct.
// A kernel's merged metadata holds its own parameters followed by one nested
// struct per referenced data interface.
type ParametersMetadata struct {
	Name    string
	Members []Member

	flat        []FlatMember
	index       map[string]int
	uniformSize int
}

// StructBuilder accumulates members for a [ParametersMetadata].
// Duplicate names are dropped and reported by [StructBuilder.Err].
type StructBuilder struct {
	members []Member
	names   map[string]bool
	err     error
}

// NewStructBuilder returns an empty builder.
func NewStructBuilder() *StructBuilder {
	return &StructBuilder{names: map[string]bool{}}
}

func (b *StructBuilder) add(m Member) *StructBuilder {
	if m.Name == "" {
		b.setErr(fmt.Errorf("shader: empty member name"))
		return b
	}
	if b.names[m.Name] {
		b.setErr(fmt.Errorf("shader: duplicate member %q", m.Name))
		return b
	}
	b.names[m.Name] = true
	b.members = append(b.members, m)
	return b
}

func (b *StructBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// AddParam adds a scalar or vector parameter.
func (b *StructBuilder) AddParam(name string, t Type) *StructBuilder {
	return b.add(Member{Name: name, Kind: MemberScalar, Type: t})
}

// AddBuffer adds a structured buffer with the given element type.
func (b *StructBuilder) AddBuffer(name string, elem Type, writable bool) *StructBuilder {
	return b.add(Member{Name: name, Kind: MemberBuffer, Type: elem, Writable: writable})
}

// AddNestedStruct adds s as a nested struct under name.
func (b *StructBuilder) AddNestedStruct(name string, s *ParametersMetadata) *StructBuilder {
	if s == nil {
		b.setErr(fmt.Errorf("shader: nil nested struct %q", name))
		return b
	}
	return b.add(Member{Name: name, Kind: MemberStruct, Struct: s})
}

// Err returns the first error encountered while building.
func (b *StructBuilder) Err() error {
	return b.err
}

// Build returns the metadata with layout computed.
func (b *StructBuilder) Build(name string) *ParametersMetadata {
	md := &ParametersMetadata{Name: name, Members: append([]Member(nil), b.members...)}
	md.layout()
	return md
}

func (md *ParametersMetadata) layout() {
	md.index = map[string]int{}
	offset := 0
	binding := 1
	var walk func(prefix string, s *ParametersMetadata)
	walk = func(prefix string, s *ParametersMetadata) {
		for _, m := range s.Members {
			name := m.Name
			if prefix != "" {
				name = prefix + "_" + m.Name
			}
			switch m.Kind {
			case MemberStruct:
				walk(name, m.Struct)
			case MemberScalar:
				a := m.Type.Align()
				offset = (offset + a - 1) / a * a
				md.index[name] = len(md.flat)
				md.flat = append(md.flat, FlatMember{Name: name, Kind: MemberScalar, Type: m.Type, Offset: offset})
				offset += m.Type.Size()
			case MemberBuffer:
				md.index[name] = len(md.flat)
				md.flat = append(md.flat, FlatMember{Name: name, Kind: MemberBuffer, Type: m.Type, Writable: m.Writable, Offset: -1, Binding: binding})
				binding++
			}
		}
	}
	walk("", md)
	md.uniformSize = (offset + 15) / 16 * 16
}

// Flatten returns the leaf members in declaration order.
// The returned slice must not be modified.
func (md *ParametersMetadata) Flatten() []FlatMember {
	return md.flat
}

// Scalars returns the scalar leaf members in declaration order.
func (md *ParametersMetadata) Scalars() []FlatMember {
	var out []FlatMember
	for _, m := range md.flat {
		if m.Kind == MemberScalar {
			out = append(out, m)
		}
	}
	return out
}

// Buffers returns the buffer leaf members in binding order.
func (md *ParametersMetadata) Buffers() []FlatMember {
	var out []FlatMember
	for _, m := range md.flat {
		if m.Kind == MemberBuffer {
			out = append(out, m)
		}
	}
	return out
}

// UniformSize is the size of the uniform block in bytes, rounded to 16.
func (md *ParametersMetadata) UniformSize() int {
	return md.uniformSize
}

// FindMember looks up a leaf member by its flattened name.
func (md *ParametersMetadata) FindMember(name string) (FlatMember, bool) {
	i, ok := md.index[name]
	if !ok {
		return FlatMember{}, false
	}
	return md.flat[i], true
}

// NestedStruct returns the nested struct added under name, or nil.
func (md *ParametersMetadata) NestedStruct(name string) *ParametersMetadata {
	for _, m := range md.Members {
		if m.Kind == MemberStruct && m.Name == name {
			return m.Struct
		}
	}
	return nil
}

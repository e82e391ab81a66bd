// Package shader describes the shader-visible surface of compute kernels:
// value types, function signatures, parameter struct layouts and the
// compile service that turns assembled source into shader maps.
package shader

import (
	"fmt"
	"strings"
)

// BaseType is the scalar kind of a shader value.
type BaseType int

const (
	None BaseType = iota
	Bool
	Int
	UInt
	Float
)

// Type is a scalar or vector shader value type.
// The zero value means "no type" and is used for void returns.
type Type struct {
	Base BaseType
	Dim  int
}

// Void is the absent type.
var Void = Type{}

// Common types.
var (
	TypeBool   = Type{Bool, 1}
	TypeInt    = Type{Int, 1}
	TypeUInt   = Type{UInt, 1}
	TypeFloat  = Type{Float, 1}
	TypeFloat2 = Type{Float, 2}
	TypeFloat3 = Type{Float, 3}
	TypeFloat4 = Type{Float, 4}
	TypeUInt2  = Type{UInt, 2}
	TypeUInt3  = Type{UInt, 3}
	TypeInt3   = Type{Int, 3}
)

// IsVoid reports whether t is the absent type.
func (t Type) IsVoid() bool {
	return t.Base == None
}

// Size is the byte size of one value of this type.
func (t Type) Size() int {
	if t.IsVoid() {
		return 0
	}
	return 4 * t.Dim
}

// Align is the uniform-buffer alignment of this type (WGSL rules).
func (t Type) Align() int {
	switch t.Dim {
	case 1:
		return 4
	case 2:
		return 8
	case 3, 4:
		return 16
	}
	return 4
}

// Name returns the type name in the given dialect.
func (t Type) Name(d Dialect) string {
	if t.IsVoid() {
		if d == WGSL {
			return ""
		}
		return "void"
	}
	if d == WGSL {
		var s string
		switch t.Base {
		case Bool:
			s = "bool"
		case Int:
			s = "i32"
		case UInt:
			s = "u32"
		case Float:
			s = "f32"
		}
		if t.Dim > 1 {
			return fmt.Sprintf("vec%d<%s>", t.Dim, s)
		}
		return s
	}
	var s string
	switch t.Base {
	case Bool:
		s = "bool"
	case Int:
		s = "int"
	case UInt:
		s = "uint"
	case Float:
		s = "float"
	}
	if t.Dim > 1 {
		return fmt.Sprintf("%s%d", s, t.Dim)
	}
	return s
}

// StorageName returns the type name used in uniform and storage buffer
// declarations. WGSL bool is not host-shareable, so it is declared with
// the same number of u32 components; [Bindings] packs bools as 0 or 1.
func (t Type) StorageName(d Dialect) string {
	if d == WGSL && t.Base == Bool {
		return Type{UInt, t.Dim}.Name(d)
	}
	return t.Name(d)
}

func (t Type) String() string {
	return t.Name(HLSL)
}

// ParseType parses an HLSL-style type name such as "float3" or "uint".
// "void" and "" parse to [Void].
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "void" {
		return Void, nil
	}
	for _, b := range []struct {
		name string
		base BaseType
	}{{"float", Float}, {"uint", UInt}, {"int", Int}, {"bool", Bool}} {
		rest, ok := strings.CutPrefix(s, b.name)
		if !ok {
			continue
		}
		if rest == "" {
			return Type{b.base, 1}, nil
		}
		if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '4' {
			return Type{b.base, int(rest[0] - '0')}, nil
		}
	}
	return Void, fmt.Errorf("shader: unknown type %q", s)
}

// Dialect is the shading language that kernel and data interface source is written in.
type Dialect int

const (
	HLSL Dialect = iota
	WGSL
)

func (d Dialect) String() string {
	if d == WGSL {
		return "wgsl"
	}
	return "hlsl"
}

// ParseDialect parses "hlsl" or "wgsl".
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hlsl":
		return HLSL, nil
	case "wgsl":
		return WGSL, nil
	}
	return HLSL, fmt.Errorf("shader: unknown dialect %q", s)
}

// FeatureLevel is the GPU capability tier a shader is compiled for.
type FeatureLevel int

const (
	ES31 FeatureLevel = iota
	SM5
	SM6
)

func (fl FeatureLevel) String() string {
	switch fl {
	case ES31:
		return "ES3_1"
	case SM5:
		return "SM5"
	case SM6:
		return "SM6"
	}
	return fmt.Sprintf("FeatureLevel(%d)", int(fl))
}

// ParseFeatureLevel parses the names produced by [FeatureLevel.String].
func ParseFeatureLevel(s string) (FeatureLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ES3_1", "ES31":
		return ES31, nil
	case "SM5":
		return SM5, nil
	case "SM6":
		return SM6, nil
	}
	return SM5, fmt.Errorf("shader: unknown feature level %q", s)
}

// Platform names a shader target platform, e.g. "Metal" or "Vulkan".
type Platform string

// PlatformNull is the portable platform used by the CPU-side source compiler.
const PlatformNull Platform = "Null"

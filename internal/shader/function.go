package shader

import (
	"fmt"
	"slices"
	"strings"
)

// FunctionDesc is the signature of a function exposed by a data interface
// or expected by a kernel's external function slot.
type FunctionDesc struct {
	Name       string
	ReturnType Type
	ParamTypes []Type
}

// NewFunction returns a FunctionDesc with the given return and parameter types.
func NewFunction(name string, ret Type, params ...Type) FunctionDesc {
	return FunctionDesc{Name: name, ReturnType: ret, ParamTypes: params}
}

// HasReturn reports whether the function returns a value.
func (f FunctionDesc) HasReturn() bool {
	return !f.ReturnType.IsVoid()
}

// SignatureMatches reports whether f and o have the same return type and
// parameter types. Names are not compared.
func (f FunctionDesc) SignatureMatches(o FunctionDesc) bool {
	return f.ReturnType == o.ReturnType && slices.Equal(f.ParamTypes, o.ParamTypes)
}

// String returns the signature in HLSL form, e.g. "float3 ReadPosition(uint)".
func (f FunctionDesc) String() string {
	ps := make([]string, len(f.ParamTypes))
	for i, p := range f.ParamTypes {
		ps[i] = p.Name(HLSL)
	}
	return fmt.Sprintf("%s %s(%s)", f.ReturnType.Name(HLSL), f.Name, strings.Join(ps, ", "))
}

// ParseFunction parses a signature written as "float3 ReadPosition(uint)"
// or "void WriteValue(uint, float4)".
func ParseFunction(s string) (FunctionDesc, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return FunctionDesc{}, fmt.Errorf("shader: malformed function signature %q", s)
	}
	head := strings.Fields(s[:open])
	if len(head) != 2 {
		return FunctionDesc{}, fmt.Errorf("shader: malformed function signature %q", s)
	}
	ret, err := ParseType(head[0])
	if err != nil {
		return FunctionDesc{}, err
	}
	fd := FunctionDesc{Name: head[1], ReturnType: ret}
	args := strings.TrimSpace(s[open+1 : len(s)-1])
	if args == "" {
		return fd, nil
	}
	for _, a := range strings.Split(args, ",") {
		// allow "uint index" as well as "uint"
		fields := strings.Fields(a)
		if len(fields) == 0 {
			return FunctionDesc{}, fmt.Errorf("shader: empty parameter in %q", s)
		}
		t, err := ParseType(fields[0])
		if err != nil {
			return FunctionDesc{}, err
		}
		if t.IsVoid() {
			return FunctionDesc{}, fmt.Errorf("shader: void parameter in %q", s)
		}
		fd.ParamTypes = append(fd.ParamTypes, t)
	}
	return fd, nil
}

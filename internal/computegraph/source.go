package computegraph

import (
	"fmt"
	"regexp"
	"strings"

	"computegraph/internal/shader"
)

const hlslHelpers = `#define DI_CAT_(a, b) a##b
#define DI_CAT(a, b) DI_CAT_(a, b)
#define DI_LOCAL(x) DI_CAT(DI_UID, x)
#define DI_PARAM(x) DI_CAT(DI_UID, x)
`

var (
	diLocalRe = regexp.MustCompile(`DI_LOCAL\(\s*(\w+)\s*\)`)
	diParamRe = regexp.MustCompile(`DI_PARAM\(\s*(\w+)\s*\)`)
)

// assembleLocked stitches the source of kernel k: helpers, parameter
// declarations, one bracketed snippet per referenced data interface,
// one shim per edge and finally the kernel's own source.
func (g *Graph) assembleLocked(k int, edges []boundEdge, md *shader.ParametersMetadata) string {
	kernel := g.Kernels[k]
	d := kernel.Source.Dialect
	var sb strings.Builder
	fmt.Fprintf(&sb, "// %s/%s\n", g.Name, kernel.Name)
	if d == shader.HLSL {
		sb.WriteString(hlslHelpers)
	}
	sb.WriteString("\n")
	writeParameters(&sb, md, d)

	for _, i := range referencedDataInterfaces(edges) {
		writeSnippet(&sb, d, md, g.DataInterfaceID(i), g.DataInterfaces[i].Source(d))
	}
	for _, e := range edges {
		writeShim(&sb, d, g.DataInterfaceID(e.DataInterfaceIndex), e)
	}
	sb.WriteString("\n")
	sb.WriteString(kernel.Source.Source)
	if !strings.HasSuffix(kernel.Source.Source, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeParameters(sb *strings.Builder, md *shader.ParametersMetadata, d shader.Dialect) {
	if d == shader.WGSL {
		sb.WriteString("struct Params {\n")
		scalars := md.Scalars()
		for _, m := range scalars {
			fmt.Fprintf(sb, "\t%s: %s,\n", m.Name, m.Type.StorageName(d))
		}
		if len(scalars) == 0 {
			sb.WriteString("\t_unused: u32,\n")
		}
		sb.WriteString("};\n")
		sb.WriteString("@group(0) @binding(0) var<uniform> params: Params;\n")
		for _, m := range md.Buffers() {
			access := "read"
			if m.Writable {
				access = "read_write"
			}
			fmt.Fprintf(sb, "@group(0) @binding(%d) var<storage, %s> %s: array<%s>;\n", m.Binding, access, m.Name, m.Type.StorageName(d))
		}
		sb.WriteString("\n")
		return
	}
	for _, m := range md.Flatten() {
		switch {
		case m.Kind == shader.MemberScalar:
			fmt.Fprintf(sb, "%s %s;\n", m.Type.Name(d), m.Name)
		case m.Writable:
			fmt.Fprintf(sb, "RWStructuredBuffer<%s> %s;\n", m.Type.Name(d), m.Name)
		default:
			fmt.Fprintf(sb, "StructuredBuffer<%s> %s;\n", m.Type.Name(d), m.Name)
		}
	}
	sb.WriteString("\n")
}

func writeSnippet(sb *strings.Builder, d shader.Dialect, md *shader.ParametersMetadata, uid, src string) {
	if d == shader.WGSL {
		src = diLocalRe.ReplaceAllString(src, uid+"_${1}")
		src = diParamRe.ReplaceAllStringFunc(src, func(s string) string {
			return wgslParam(md, shader.MemberName(uid, diParamRe.FindStringSubmatch(s)[1]))
		})
		fmt.Fprintf(sb, "// #define DI_UID %s_\n", uid)
	} else {
		fmt.Fprintf(sb, "#define DI_UID %s_\n", uid)
	}
	sb.WriteString(src)
	if !strings.HasSuffix(src, "\n") {
		sb.WriteString("\n")
	}
	if d == shader.WGSL {
		sb.WriteString("// #undef DI_UID\n\n")
	} else {
		sb.WriteString("#undef DI_UID\n\n")
	}
}

// wgslParam returns the expression reading a uniform member. Bool members
// are stored as u32 and compared back to bool.
func wgslParam(md *shader.ParametersMetadata, name string) string {
	ref := "params." + name
	m, ok := md.FindMember(name)
	if !ok || m.Type.Base != shader.Bool {
		return ref
	}
	if m.Type.Dim == 1 {
		return "(" + ref + " != 0u)"
	}
	return fmt.Sprintf("(%s != vec%d<u32>(0u))", ref, m.Type.Dim)
}

// writeShim emits a function with the kernel's expected name and
// signature that forwards to the data interface function.
func writeShim(sb *strings.Builder, d shader.Dialect, uid string, e boundEdge) {
	name := e.BindingNameOverride
	if name == "" {
		name = e.kernelFn.Name
	}
	target := uid + "_" + e.diFn.Name
	args := make([]string, len(e.kernelFn.ParamTypes))
	decls := make([]string, len(e.kernelFn.ParamTypes))
	for i, t := range e.kernelFn.ParamTypes {
		args[i] = fmt.Sprintf("a%d", i)
		if d == shader.WGSL {
			decls[i] = fmt.Sprintf("a%d: %s", i, t.Name(d))
		} else {
			decls[i] = fmt.Sprintf("%s a%d", t.Name(d), i)
		}
	}
	call := fmt.Sprintf("%s(%s)", target, strings.Join(args, ", "))
	body := call + ";"
	if e.kernelFn.HasReturn() {
		body = "return " + body
	}
	if d == shader.WGSL {
		ret := ""
		if e.kernelFn.HasReturn() {
			ret = " -> " + e.kernelFn.ReturnType.Name(d)
		}
		fmt.Fprintf(sb, "fn %s(%s)%s { %s }\n", name, strings.Join(decls, ", "), ret, body)
		return
	}
	fmt.Fprintf(sb, "%s %s(%s) { %s }\n", e.kernelFn.ReturnType.Name(d), name, strings.Join(decls, ", "), body)
}

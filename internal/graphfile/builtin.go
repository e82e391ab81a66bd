package graphfile

import (
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"path"

	"computegraph/internal/components"
	"computegraph/internal/rdg"
)

//go:embed builtin
var builtinFS embed.FS

// Builtin returns the embedded graph document name, e.g. "orbit".
// Source files resolve inside the embedded tree.
func Builtin(name string) (*Document, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("graphfile: no builtin graph %q", name)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for i, k := range d.Kernels {
		if k.SourceFile == "" {
			continue
		}
		src, err := fs.ReadFile(builtinFS, path.Join("builtin", k.SourceFile))
		if err != nil {
			return nil, fmt.Errorf("graphfile: builtin %s: %w", name, err)
		}
		d.Kernels[i].Source, d.Kernels[i].SourceFile = string(src), ""
	}
	return d, nil
}

// RegisterEmulators installs CPU versions of the builtin kernels on b.
func RegisterEmulators(b *rdg.RecordingBackend) {
	b.Emulate("Orbit", emulateOrbit)
}

func emulateOrbit(pass *rdg.ComputePass, data func(string) []byte) {
	md := pass.Bindings.Metadata()
	u := pass.Bindings.PackUniform()
	word := func(name string) uint32 {
		m, ok := md.FindMember(name)
		if !ok {
			return 0
		}
		return binary.LittleEndian.Uint32(u[m.Offset:])
	}
	f32 := func(name string) float32 { return math.Float32frombits(word(name)) }

	gameTime, dt := f32("DI000_GameTime"), f32("DI000_DeltaTime")
	off, n := word("DI001_ElementOffset"), word("DI001_NumElements")
	buf := data("DI001_Values")
	for i := off; i < off+n && int(i+1)*components.ParticleStride <= len(buf); i++ {
		p := buf[i*components.ParticleStride:]
		get := func(c int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(p[4*c:])) }
		put := func(c int, v float32) { binary.LittleEndian.PutUint32(p[4*c:], math.Float32bits(v)) }
		// id.x is relative to the section
		t := float64(gameTime + float32(i-off)*0.05)
		r := get(3)
		put(0, float32(math.Cos(t))*r)
		put(2, float32(math.Sin(t))*r)
		put(1, get(1)+dt*0.1)
	}
}

package rdg

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"computegraph/internal/shader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPass(t *testing.T, b *Builder, in, out *Buffer) *ComputePass {
	t.Helper()
	md := shader.NewStructBuilder().
		AddParam("Count", shader.TypeUInt).
		AddBuffer("In", shader.TypeUInt, false).
		AddBuffer("Out", shader.TypeUInt, true).
		Build("Double_Parameters")
	binds := shader.NewBindings(md)
	binds.Set("", "Count", uint32(4))
	binds.SetBuffer("", "In", b.CreateBufferView(in))
	binds.SetBuffer("", "Out", b.CreateUAV(out))
	require.NoError(t, binds.Err())
	return &ComputePass{
		Name:       "Double",
		Shader:     &shader.ShaderMap{EntryPoint: "Double", Hash: shader.HashOf([]byte("d"))},
		Bindings:   binds,
		GroupCount: [3]int{1, 1, 1},
	}
}

func TestBuilderExecute(t *testing.T) {
	backend := NewRecordingBackend()
	backend.Emulate("Double", func(pass *ComputePass, data func(string) []byte) {
		in, out := data("In"), data("Out")
		for i := 0; i+4 <= len(in); i += 4 {
			binary.LittleEndian.PutUint32(out[i:], 2*binary.LittleEndian.Uint32(in[i:]))
		}
	})

	ext := NewExternalBuffer("Persistent", StructuredDesc(4, 4))
	b := NewBuilder(backend)
	in := b.CreateBuffer(StructuredDesc(4, 4), "In")
	out := b.RegisterBuffer(ext)
	assert.Same(t, out, b.RegisterBuffer(ext))

	src := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(src[4*i:], uint32(i+1))
	}
	b.Upload(in, src)
	b.AddComputePass(testPass(t, b, in, out))

	var got []byte
	b.QueueReadback(out, func(data []byte) { got = data })
	require.NoError(t, b.Execute(context.Background()))

	require.Len(t, got, 16)
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(got[12:]))

	recs := backend.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "Double", recs[0].EntryPoint)
	assert.Equal(t, "In", recs[0].Buffers["In"])
	assert.Equal(t, "Persistent", recs[0].Buffers["Out"])
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(recs[0].Uniform))

	assert.True(t, ext.IsAllocated())
	assert.Equal(t, 1, backend.Live(), "transient released, external kept")
	ext.Release()
	assert.Equal(t, 0, backend.Live())

	assert.Error(t, b.Execute(context.Background()), "second execute")
}

func TestBuilderUploadOverflow(t *testing.T) {
	b := NewBuilder(NewRecordingBackend())
	buf := b.CreateBuffer(StructuredDesc(4, 1), "Tiny")
	b.Upload(buf, make([]byte, 8))
	assert.Error(t, b.Execute(context.Background()))
}

func TestBuilderCancelled(t *testing.T) {
	backend := NewRecordingBackend()
	b := NewBuilder(backend)
	in := b.CreateBuffer(StructuredDesc(4, 4), "In")
	out := b.CreateBuffer(StructuredDesc(4, 4), "Out")
	b.AddComputePass(testPass(t, b, in, out))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Execute(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, backend.Records())
	assert.Equal(t, 0, backend.Live())
}

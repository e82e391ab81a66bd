package shader

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Type
	}{
		{"float", TypeFloat},
		{"float3", TypeFloat3},
		{"uint", TypeUInt},
		{"uint2", TypeUInt2},
		{"int3", TypeInt3},
		{"bool", TypeBool},
		{"void", Void},
		{"", Void},
	} {
		got, err := ParseType(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, err := ParseType("float5")
	assert.Error(t, err)
	_, err = ParseType("matrix")
	assert.Error(t, err)
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "float3", TypeFloat3.Name(HLSL))
	assert.Equal(t, "vec3<f32>", TypeFloat3.Name(WGSL))
	assert.Equal(t, "u32", TypeUInt.Name(WGSL))
	assert.Equal(t, "void", Void.Name(HLSL))
	assert.Equal(t, "", Void.Name(WGSL))

	assert.Equal(t, "bool", TypeBool.Name(WGSL))
	assert.Equal(t, "u32", TypeBool.StorageName(WGSL))
	assert.Equal(t, "vec3<u32>", Type{Bool, 3}.StorageName(WGSL))
	assert.Equal(t, "bool", TypeBool.StorageName(HLSL))
	assert.Equal(t, "vec4<f32>", TypeFloat4.StorageName(WGSL))
}

func TestParseFunction(t *testing.T) {
	fd, err := ParseFunction("float3 ReadPosition(uint)")
	require.NoError(t, err)
	assert.Equal(t, NewFunction("ReadPosition", TypeFloat3, TypeUInt), fd)

	fd, err = ParseFunction("void WriteValue(uint index, float4 value)")
	require.NoError(t, err)
	assert.False(t, fd.HasReturn())
	assert.Equal(t, []Type{TypeUInt, TypeFloat4}, fd.ParamTypes)

	fd, err = ParseFunction("uint ReadNumElements()")
	require.NoError(t, err)
	assert.Empty(t, fd.ParamTypes)
	assert.Equal(t, "uint ReadNumElements()", fd.String())

	_, err = ParseFunction("ReadNumElements")
	assert.Error(t, err)
	_, err = ParseFunction("float Read(void)")
	assert.Error(t, err)
}

func TestSignatureMatches(t *testing.T) {
	a := NewFunction("ReadA", TypeFloat, TypeUInt)
	b := NewFunction("ReadValue", TypeFloat, TypeUInt)
	assert.True(t, a.SignatureMatches(b))
	assert.False(t, a.SignatureMatches(NewFunction("X", Void, TypeUInt)))
	assert.False(t, a.SignatureMatches(NewFunction("X", TypeFloat)))
	assert.False(t, a.SignatureMatches(NewFunction("X", TypeFloat, TypeUInt, TypeUInt)))
	assert.False(t, a.SignatureMatches(NewFunction("X", TypeFloat, TypeInt)))
}

func TestStructLayout(t *testing.T) {
	nested := NewStructBuilder().
		AddParam("NumElements", TypeUInt).
		AddParam("Origin", TypeFloat3).
		AddBuffer("Values", TypeFloat4, true).
		Build("ParticleParams")
	b := NewStructBuilder().
		AddParam("Scale", TypeFloat).
		AddNestedStruct("DI000", nested).
		AddBuffer("Lookup", TypeUInt, false)
	require.NoError(t, b.Err())
	md := b.Build("Kernel_Parameters")

	assert.Same(t, nested, md.NestedStruct("DI000"))
	assert.Nil(t, md.NestedStruct("DI001"))

	scale, ok := md.FindMember("Scale")
	require.True(t, ok)
	assert.Equal(t, 0, scale.Offset)

	num, ok := md.FindMember("DI000_NumElements")
	require.True(t, ok)
	assert.Equal(t, 4, num.Offset)

	origin, ok := md.FindMember("DI000_Origin")
	require.True(t, ok)
	assert.Equal(t, 16, origin.Offset, "vec3 aligns to 16")

	bufs := md.Buffers()
	require.Len(t, bufs, 2)
	assert.Equal(t, "DI000_Values", bufs[0].Name)
	assert.Equal(t, 1, bufs[0].Binding)
	assert.True(t, bufs[0].Writable)
	assert.Equal(t, "Lookup", bufs[1].Name)
	assert.Equal(t, 2, bufs[1].Binding)

	assert.Equal(t, 32, md.UniformSize())
}

func TestStructBuilderDuplicate(t *testing.T) {
	b := NewStructBuilder().AddParam("A", TypeFloat).AddParam("A", TypeUInt)
	assert.Error(t, b.Err())
	md := b.Build("S")
	assert.Len(t, md.Flatten(), 1)
}

type fakeView struct{ writable bool }

func (v fakeView) IsWritable() bool { return v.writable }

func TestBindings(t *testing.T) {
	nested := NewStructBuilder().
		AddParam("Count", TypeUInt).
		AddParam("Tint", TypeFloat3).
		AddBuffer("Out", TypeFloat4, true).
		Build("P")
	md := NewStructBuilder().AddParam("Scale", TypeFloat).AddNestedStruct("DI001", nested).Build("K")

	b := NewBindings(md)
	b.Set("", "Scale", float32(2))
	b.Set("DI001", "Count", uint32(7))
	b.Set("DI001", "Tint", [3]float32{1, 0.5, 0.25})
	assert.Equal(t, []string{"DI001_Out"}, b.Missing())
	b.SetBuffer("DI001", "Out", fakeView{writable: true})
	require.NoError(t, b.Err())
	assert.Empty(t, b.Missing())
	assert.True(t, b.IsSet("DI001_Count"))

	raw := b.PackUniform()
	require.Len(t, raw, md.UniformSize())
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(raw[0:])))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(raw[4:]))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(raw[20:])))
}

func TestBindingsErrors(t *testing.T) {
	md := NewStructBuilder().
		AddParam("Count", TypeUInt).
		AddBuffer("Out", TypeFloat, true).
		Build("K")
	b := NewBindings(md)
	b.Set("", "Missing", uint32(1))
	b.Set("", "Count", float32(1))
	b.Set("", "Out", uint32(1))
	b.SetBuffer("", "Out", fakeView{writable: false})
	b.SetBuffer("", "Count", fakeView{writable: true})
	err := b.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no member")
	assert.Contains(t, err.Error(), "needs a writable view")
	assert.False(t, b.IsSet("Count"))
}

func TestSourceCompiler(t *testing.T) {
	c := SourceCompiler{}
	job := &CompileJob{
		FriendlyName: "G/K",
		EntryPoint:   "Main",
		Source:       "[numthreads(64,1,1)]\nvoid Main(uint3 id : SV_DispatchThreadID) {\n}\n",
		Hash:         HashOf([]byte("x")),
	}
	sm, err := c.Compile(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, sm.IsComplete())

	job.Source = "void Main() {\n#error forced failure\n"
	_, err = c.Compile(context.Background(), job)
	var cf *CompileFailure
	require.ErrorAs(t, err, &cf)
	assert.Len(t, cf.Diagnostics, 2)
	assert.Contains(t, cf.Diagnostics[0], "forced failure")

	job.Dialect = WGSL
	job.Source = "fn other() {}"
	_, err = c.Compile(context.Background(), job)
	require.ErrorAs(t, err, &cf)
	assert.Contains(t, cf.Diagnostics[0], "entry point")
}

type countingCompiler struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingCompiler) Compile(ctx context.Context, job *CompileJob) (*ShaderMap, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, &CompileFailure{Diagnostics: []string{"boom"}}
	}
	return &ShaderMap{Hash: job.Hash, EntryPoint: job.EntryPoint}, nil
}

func TestCompileQueueSyncAndCache(t *testing.T) {
	cc := &countingCompiler{}
	q := NewCompileQueue(cc, QueueOptions{Mode: CompileSync})
	job := &CompileJob{FriendlyName: "G/K", EntryPoint: "Main", Hash: HashOf([]byte("a"))}

	calls := 0
	h := q.Submit(context.Background(), job, func(sm *ShaderMap, err error) {
		calls++
		assert.NoError(t, err)
	})
	assert.True(t, h.Poll(), "sync compile finishes inline")
	assert.Equal(t, 1, calls)

	h2 := q.Submit(context.Background(), job, func(*ShaderMap, error) { calls++ })
	sm, err := h2.Result()
	require.NoError(t, err)
	assert.NotNil(t, sm)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(1), cc.calls.Load(), "second submit served from cache")
}

func TestCompileQueueAsync(t *testing.T) {
	cc := &countingCompiler{fail: true}
	q := NewCompileQueue(cc, QueueOptions{Mode: CompileAsync, Workers: 2})
	assert.False(t, q.Synchronous(false))
	assert.True(t, q.Synchronous(true))

	var done atomic.Int32
	var handles []*CompileHandle
	for i := 0; i < 5; i++ {
		job := &CompileJob{FriendlyName: "G/K", EntryPoint: "Main", Hash: HashOf([]byte{byte(i)})}
		handles = append(handles, q.Submit(context.Background(), job, func(sm *ShaderMap, err error) {
			done.Add(1)
		}))
	}
	q.Wait()
	assert.Equal(t, int32(5), done.Load())
	assert.Equal(t, 0, q.Pending())
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		assert.Error(t, err)
		assert.Equal(t, []string{"boom"}, h.Diagnostics())
	}
}

func TestCompileModeAuto(t *testing.T) {
	q := NewCompileQueue(SourceCompiler{}, QueueOptions{Mode: CompileAuto})
	assert.False(t, q.Synchronous(false))
	assert.True(t, q.Synchronous(true))
	q = NewCompileQueue(SourceCompiler{}, QueueOptions{Mode: CompileAuto, Headless: true})
	assert.True(t, q.Synchronous(false))

	m, err := ParseCompileMode("ASYNC")
	require.NoError(t, err)
	assert.Equal(t, CompileAsync, m)
	_, err = ParseCompileMode("later")
	assert.Error(t, err)
}

func TestCompileHandlePending(t *testing.T) {
	h := newCompileHandle(nil)
	_, err := h.Result()
	assert.True(t, errors.Is(err, ErrPending))
	assert.Nil(t, h.Diagnostics())
	h.finish(nil, errors.New("x"))
	h.finish(&ShaderMap{}, nil)
	_, err = h.Result()
	assert.EqualError(t, err, "x")
}

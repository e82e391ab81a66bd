package components

import (
	"testing"

	"computegraph/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticleBufferSections(t *testing.T) {
	p := NewParticleBuffer("P", 10, 3)
	assert.Equal(t, []Section{{0, 4}, {4, 4}, {8, 2}}, p.Sections())
	assert.Equal(t, 10, p.Len())
	assert.Equal(t, 160, p.ExternalBuffer().Desc.Size())

	empty := NewParticleBuffer("E", 0, 4)
	assert.Equal(t, []Section{{}}, empty.Sections())
}

func TestParticleBufferSnapshotVersions(t *testing.T) {
	p := NewParticleBuffer("P", 2, 1)

	data, v := p.Snapshot()
	require.Len(t, data, 32, "fresh buffers upload once")
	stale, sv := p.Snapshot()
	require.NotNil(t, stale, "not claimed yet")
	assert.True(t, p.ClaimUpload(v))
	assert.False(t, p.ClaimUpload(sv), "a second snapshot of the same version is not uploaded")
	data, _ = p.Snapshot()
	assert.Nil(t, data)

	require.NoError(t, p.SetValues([][4]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}))
	data, v = p.Snapshot()
	require.Len(t, data, 32)

	p.StoreReadback(data, v)
	assert.Equal(t, [][4]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}, p.Values())
	assert.Equal(t, uint64(1), p.Readbacks())

	p.StoreReadback(make([]byte, 32), v-1)
	assert.Equal(t, float32(1), p.Values()[0][0], "stale read-back is ignored")

	assert.Error(t, p.SetValues(make([][4]float32, 3)))
}

func TestRegisteredFactories(t *testing.T) {
	c, err := engine.CreateComponent("ParticleBuffer", map[string]any{"count": 8, "sections": 2, "name": "Sparks"})
	require.NoError(t, err)
	p := c.(*ParticleBuffer)
	assert.Equal(t, 8, p.Len())
	assert.Equal(t, "Sparks", p.ExternalBuffer().Name)

	_, err = engine.CreateComponent("ParticleBuffer", map[string]any{"count": -1})
	assert.Error(t, err)

	c, err = engine.CreateComponent("Orbiter", map[string]any{"radius": 2.0, "speed": 1})
	require.NoError(t, err)
	o := c.(*Orbiter)
	assert.Equal(t, float32(2), o.Radius)
	assert.Equal(t, float32(1), o.Speed)
}

func TestOrbiterMovesObject(t *testing.T) {
	obj := engine.NewGameObject("Moon")
	o := NewOrbiter(obj.Transform.Position, 2, 0, 0)
	o.RotationSpeed = 90
	obj.AddComponent(o)

	obj.Update(1)
	assert.InDelta(t, 2, obj.Transform.Position.X, 1e-5)
	assert.InDelta(t, 90, obj.Transform.Rotation.Y, 1e-5)

	assert.Equal(t, "Orbiter", engine.TypeName(o))
}

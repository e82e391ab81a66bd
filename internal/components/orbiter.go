package components

import (
	"math"

	"computegraph/internal/engine"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func init() {
	engine.RegisterComponentType("Orbiter", orbiterFactory)
}

// Orbiter moves its object on a circle around Center and spins it
// around Y.
type Orbiter struct {
	engine.BaseComponent
	Center        rl.Vector3
	Radius        float32
	Speed         float32 // radians per second
	Phase         float32
	RotationSpeed float32 // degrees per second
	time          float32
}

func NewOrbiter(center rl.Vector3, radius, speed, phase float32) *Orbiter {
	return &Orbiter{Center: center, Radius: radius, Speed: speed, Phase: phase}
}

func orbiterFactory(props map[string]any) (engine.Component, error) {
	o := NewOrbiter(rl.Vector3{
		X: propFloat(props, "x", 0),
		Y: propFloat(props, "y", 0),
		Z: propFloat(props, "z", 0),
	}, propFloat(props, "radius", 1), propFloat(props, "speed", 1), propFloat(props, "phase", 0))
	o.RotationSpeed = propFloat(props, "rotationSpeed", 0)
	return o, nil
}

func (o *Orbiter) Update(deltaTime float32) {
	g := o.GetGameObject()
	if g == nil {
		return
	}
	o.time += deltaTime

	t := float64(o.time*o.Speed + o.Phase)
	offset := rl.Vector3{
		X: float32(math.Cos(t)) * o.Radius,
		Z: float32(math.Sin(t)) * o.Radius,
	}
	g.Transform.Position = rl.Vector3Add(o.Center, offset)

	g.Transform.Rotation.Y += o.RotationSpeed * deltaTime
	if g.Transform.Rotation.Y > 360 {
		g.Transform.Rotation.Y -= 360
	}
}

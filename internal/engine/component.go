package engine

import "reflect"

type Component interface {
	Start()
	Update(deltaTime float32)
	SetGameObject(g *GameObject)
	GetGameObject() *GameObject
}

// TypeNamer is implemented by components whose lookup name differs
// from their Go type name.
type TypeNamer interface {
	TypeName() string
}

// TypeName returns the name a binding object is matched by: the
// TypeName method if present, otherwise the Go type name without
// package or pointer. A *GameObject is "GameObject".
func TypeName(v any) string {
	if v == nil {
		return ""
	}
	if n, ok := v.(TypeNamer); ok {
		return n.TypeName()
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// OwnerOf returns the GameObject that owns v: v itself for a
// GameObject, the attached object for a Component, nil otherwise.
func OwnerOf(v any) *GameObject {
	switch o := v.(type) {
	case *GameObject:
		return o
	case Component:
		return o.GetGameObject()
	}
	return nil
}

// BaseComponent provides default implementation for Component interface
type BaseComponent struct {
	gameObject *GameObject
}

func (b *BaseComponent) Start() {}

func (b *BaseComponent) Update(deltaTime float32) {}

func (b *BaseComponent) SetGameObject(g *GameObject) {
	b.gameObject = g
}

func (b *BaseComponent) GetGameObject() *GameObject {
	return b.gameObject
}

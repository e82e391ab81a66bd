package engine

import (
	"fmt"
	"slices"
)

// ComponentFactory creates a Component from decoded document props.
type ComponentFactory func(props map[string]any) (Component, error)

var componentRegistry = map[string]ComponentFactory{}

// RegisterComponentType registers a named component factory.
// Registering the same name twice panics.
func RegisterComponentType(name string, factory ComponentFactory) {
	if _, exists := componentRegistry[name]; exists {
		panic(fmt.Sprintf("component type %q already registered", name))
	}
	componentRegistry[name] = factory
}

// CreateComponent looks up a registered component type by name and creates it with the given props.
func CreateComponent(name string, props map[string]any) (Component, error) {
	factory, ok := componentRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown component type %q", name)
	}
	c, err := factory(props)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", name, err)
	}
	return c, nil
}

// RegisteredComponentTypes returns a sorted list of all registered component type names.
func RegisteredComponentTypes() []string {
	names := make([]string, 0, len(componentRegistry))
	for name := range componentRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

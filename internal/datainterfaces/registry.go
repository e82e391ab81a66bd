package datainterfaces

import (
	"fmt"
	"maps"
	"slices"

	"computegraph/internal/computegraph"
)

// Factory creates a data interface from graph file arguments.
type Factory func(args map[string]any) (computegraph.DataInterface, error)

// Registry returns the data interface kinds known to graph files.
func Registry() map[string]Factory {
	return map[string]Factory{
		"Scene": func(map[string]any) (computegraph.DataInterface, error) {
			return Scene{}, nil
		},
		"Transform": func(args map[string]any) (computegraph.DataInterface, error) {
			t := Transform{}
			if v, ok := args["self"]; ok {
				self, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("transform: self must be a bool, got %T", v)
				}
				t.Self = self
			}
			return t, nil
		},
		"ParticleBuffer": func(map[string]any) (computegraph.DataInterface, error) {
			return ParticleBuffer{}, nil
		},
	}
}

// New creates a data interface of the named kind.
func New(kind string, args map[string]any) (computegraph.DataInterface, error) {
	reg := Registry()
	f, ok := reg[kind]
	if !ok {
		return nil, fmt.Errorf("unknown data interface kind %q (known: %v)", kind, slices.Sorted(maps.Keys(reg)))
	}
	return f(args)
}

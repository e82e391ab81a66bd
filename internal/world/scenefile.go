package world

import (
	"fmt"
	"os"

	_ "computegraph/internal/components"
	"computegraph/internal/engine"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gopkg.in/yaml.v3"
)

// SceneFile is the YAML description of a scene.
type SceneFile struct {
	Name    string      `yaml:"name"`
	Objects []ObjectDef `yaml:"objects"`
}

type ObjectDef struct {
	Name       string         `yaml:"name"`
	Tags       []string       `yaml:"tags,omitempty"`
	Position   [3]float32     `yaml:"position"`
	Rotation   [3]float32     `yaml:"rotation"`
	Scale      [3]float32     `yaml:"scale"`
	Components []ComponentDef `yaml:"components"`
	Children   []ObjectDef    `yaml:"children,omitempty"`
}

// ComponentDef names a registered component type and its props.
type ComponentDef struct {
	Type  string         `yaml:"type"`
	Props map[string]any `yaml:"props,omitempty"`
}

func vec(v [3]float32) rl.Vector3 {
	return rl.Vector3{X: v[0], Y: v[1], Z: v[2]}
}

// LoadScene adds the objects of the YAML scene file at path to the world.
func (w *World) LoadScene(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scene: %w", err)
	}
	return w.ParseScene(data)
}

// ParseScene adds the objects of a YAML scene document to the world.
// Nothing is added when any object fails to load.
func (w *World) ParseScene(data []byte) error {
	var sf SceneFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse scene: %w", err)
	}
	if sf.Name != "" {
		w.Scene.Name = sf.Name
	}
	var objs []*engine.GameObject
	for _, def := range sf.Objects {
		if _, err := buildObject(def, &objs); err != nil {
			return err
		}
	}
	for _, g := range objs {
		w.Scene.AddGameObject(g)
	}
	return nil
}

// buildObject creates def and its children, appending each to all.
func buildObject(def ObjectDef, all *[]*engine.GameObject) (*engine.GameObject, error) {
	g := engine.NewGameObject(def.Name)
	g.Tags = def.Tags
	g.Transform.Position = vec(def.Position)
	g.Transform.Rotation = vec(def.Rotation)

	// Default scale to 1 if zero
	if def.Scale != [3]float32{} {
		g.Transform.Scale = vec(def.Scale)
	}

	for _, cd := range def.Components {
		c, err := engine.CreateComponent(cd.Type, cd.Props)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", def.Name, err)
		}
		g.AddComponent(c)
	}
	*all = append(*all, g)

	for _, cd := range def.Children {
		child, err := buildObject(cd, all)
		if err != nil {
			return nil, err
		}
		g.AddChild(child)
	}
	return g, nil
}

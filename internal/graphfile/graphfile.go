// Package graphfile loads compute graphs from YAML documents and reloads
// kernel sources when their files change.
package graphfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"computegraph/internal/computegraph"
	"computegraph/internal/datainterfaces"
	"computegraph/internal/shader"

	"gopkg.in/yaml.v3"
)

// Document is a graph file.
type Document struct {
	Name           string             `yaml:"name"`
	DataInterfaces []DataInterfaceDef `yaml:"dataInterfaces"`
	Kernels        []KernelDef        `yaml:"kernels"`
	Edges          []EdgeDef          `yaml:"edges"`

	// Dir resolves relative source files. Read sets it to the
	// document's directory.
	Dir string `yaml:"-"`
}

type DataInterfaceDef struct {
	Kind string         `yaml:"kind"`
	Args map[string]any `yaml:"args,omitempty"`
}

type KernelDef struct {
	Name       string `yaml:"name"`
	EntryPoint string `yaml:"entryPoint"`
	Dialect    string `yaml:"dialect,omitempty"`

	// Exactly one of Source and SourceFile is set.
	Source     string `yaml:"source,omitempty"`
	SourceFile string `yaml:"sourceFile,omitempty"`

	GroupSize              [3]int `yaml:"groupSize,omitempty"`
	IsDefault              bool   `yaml:"isDefault,omitempty"`
	ExecutionDataInterface *int   `yaml:"executionDataInterface,omitempty"`

	// Inputs and Outputs are signatures such as "float3 ReadPosition(uint)".
	Inputs  []string `yaml:"inputs,omitempty"`
	Outputs []string `yaml:"outputs,omitempty"`

	// Params are scalar parameters such as "float Scale".
	Params []string `yaml:"params,omitempty"`
}

type EdgeDef struct {
	Kernel               int    `yaml:"kernel"`
	KernelBinding        int    `yaml:"kernelBinding"`
	DataInterface        int    `yaml:"dataInterface"`
	DataInterfaceBinding int    `yaml:"dataInterfaceBinding"`
	Input                bool   `yaml:"input"`
	Name                 string `yaml:"name,omitempty"`
}

// Parse decodes a graph document.
func Parse(data []byte) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("graphfile: %w", err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("graphfile: missing name")
	}
	return &d, nil
}

// Read reads and decodes the graph document at path.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphfile: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Dir = filepath.Dir(path)
	return d, nil
}

// Load reads the document at path and builds its graph.
func Load(path string, registry map[string]datainterfaces.Factory, opts ...computegraph.GraphOption) (*Document, *computegraph.Graph, error) {
	d, err := Read(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := d.Build(registry, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, g, nil
}

// Build creates the graph the document describes. A nil registry uses
// datainterfaces.Registry.
func (d *Document) Build(registry map[string]datainterfaces.Factory, opts ...computegraph.GraphOption) (*computegraph.Graph, error) {
	if registry == nil {
		registry = datainterfaces.Registry()
	}
	g := computegraph.NewGraph(d.Name, opts...)
	for i, def := range d.DataInterfaces {
		f, ok := registry[def.Kind]
		if !ok {
			return nil, fmt.Errorf("graphfile: data interface %d: unknown kind %q", i, def.Kind)
		}
		di, err := f(def.Args)
		if err != nil {
			return nil, fmt.Errorf("graphfile: data interface %d: %w", i, err)
		}
		g.AddDataInterface(di)
	}
	for i, def := range d.Kernels {
		src, err := d.KernelSource(i)
		if err != nil {
			return nil, err
		}
		k := computegraph.NewKernel(def.Name, src)
		k.GroupSize = def.GroupSize
		k.IsDefault = def.IsDefault
		if def.ExecutionDataInterface != nil {
			k.ExecutionDataInterface = *def.ExecutionDataInterface
		}
		g.AddKernel(k)
	}
	for _, e := range d.Edges {
		g.AddEdge(computegraph.GraphEdge{
			KernelIndex:               e.Kernel,
			KernelBindingIndex:        e.KernelBinding,
			DataInterfaceIndex:        e.DataInterface,
			DataInterfaceBindingIndex: e.DataInterfaceBinding,
			IsKernelInput:             e.Input,
			BindingNameOverride:       e.Name,
		})
	}
	return g, nil
}

// KernelSource builds the source of kernel i, reading its source file.
func (d *Document) KernelSource(i int) (*computegraph.KernelSource, error) {
	if i < 0 || i >= len(d.Kernels) {
		return nil, fmt.Errorf("graphfile: no kernel %d", i)
	}
	def := d.Kernels[i]
	fail := func(err error) (*computegraph.KernelSource, error) {
		return nil, fmt.Errorf("graphfile: kernel %s: %w", def.Name, err)
	}
	dialect, err := shader.ParseDialect(def.Dialect)
	if err != nil {
		return fail(err)
	}
	src := def.Source
	switch {
	case def.SourceFile != "" && src != "":
		return fail(fmt.Errorf("both source and sourceFile set"))
	case def.SourceFile != "":
		data, err := os.ReadFile(d.SourcePath(i))
		if err != nil {
			return fail(err)
		}
		src = string(data)
	}
	ks := &computegraph.KernelSource{EntryPoint: def.EntryPoint, Source: src, Dialect: dialect}
	if ks.EntryPoint == "" {
		ks.EntryPoint = def.Name
	}
	for _, s := range def.Inputs {
		fd, err := shader.ParseFunction(s)
		if err != nil {
			return fail(err)
		}
		ks.ExternalInputs = append(ks.ExternalInputs, fd)
	}
	for _, s := range def.Outputs {
		fd, err := shader.ParseFunction(s)
		if err != nil {
			return fail(err)
		}
		ks.ExternalOutputs = append(ks.ExternalOutputs, fd)
	}
	for _, s := range def.Params {
		p, err := parseParam(s)
		if err != nil {
			return fail(err)
		}
		ks.InputParams = append(ks.InputParams, p)
	}
	return ks, nil
}

// SourcePath is the cleaned path of kernel i's source file, or "" when
// the source is inline.
func (d *Document) SourcePath(i int) string {
	f := d.Kernels[i].SourceFile
	if f == "" {
		return ""
	}
	if !filepath.IsAbs(f) {
		f = filepath.Join(d.Dir, f)
	}
	return filepath.Clean(f)
}

func parseParam(s string) (shader.Param, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return shader.Param{}, fmt.Errorf("malformed param %q, want \"<type> <name>\"", s)
	}
	t, err := shader.ParseType(fields[0])
	if err != nil {
		return shader.Param{}, err
	}
	if t.IsVoid() {
		return shader.Param{}, fmt.Errorf("param %s is void", fields[1])
	}
	return shader.Param{Name: fields[1], Type: t}, nil
}

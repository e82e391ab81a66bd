package computegraph

import (
	"computegraph/internal/shader"
)

// DefaultGroupSize is used for kernels that leave GroupSize zero.
var DefaultGroupSize = [3]int{64, 1, 1}

// KernelSource is the user-written part of a kernel and the external
// functions it calls.
type KernelSource struct {
	EntryPoint string
	Source     string
	Dialect    shader.Dialect

	// ExternalInputs and ExternalOutputs are the function slots edges
	// bind data interfaces to.
	ExternalInputs  []shader.FunctionDesc
	ExternalOutputs []shader.FunctionDesc

	// InputParams are top-level scalar parameters of the kernel.
	InputParams []shader.Param
}

// Hash identifies the kernel source and its declared signatures.
func (ks *KernelSource) Hash() shader.Hash {
	parts := [][]byte{
		[]byte(ks.Dialect.String()),
		[]byte(ks.EntryPoint),
		[]byte(ks.Source),
	}
	for _, f := range ks.ExternalInputs {
		parts = append(parts, []byte("in:"+f.String()))
	}
	for _, f := range ks.ExternalOutputs {
		parts = append(parts, []byte("out:"+f.String()))
	}
	for _, p := range ks.InputParams {
		parts = append(parts, []byte("param:"+p.Type.String()+" "+p.Name))
	}
	return shader.HashOf(parts...)
}

// Kernel is one dispatchable node of a graph.
type Kernel struct {
	Name   string
	Source *KernelSource

	GroupSize [3]int

	// IsDefault marks the engine's mandatory kernel. Failing to compile
	// it is fatal.
	IsDefault bool

	// ExecutionDataInterface is the index of the data interface whose
	// provider decides the invocation and dispatch counts, or -1 to
	// choose automatically.
	ExecutionDataInterface int
}

// NewKernel returns a kernel with automatic execution provider choice.
func NewKernel(name string, src *KernelSource) *Kernel {
	return &Kernel{Name: name, Source: src, ExecutionDataInterface: -1}
}

func (k *Kernel) groupSize() [3]int {
	if k.GroupSize == [3]int{} {
		return DefaultGroupSize
	}
	gs := k.GroupSize
	for i := range gs {
		gs[i] = max(gs[i], 1)
	}
	return gs
}

// GraphEdge connects an external function slot of a kernel to a function
// of a data interface. IsKernelInput selects the kernel's ExternalInputs
// and the interface's SupportedInputs; otherwise both output lists.
type GraphEdge struct {
	KernelIndex               int
	KernelBindingIndex        int
	DataInterfaceIndex        int
	DataInterfaceBindingIndex int
	IsKernelInput             bool

	// BindingNameOverride renames the generated shim. Empty uses the
	// kernel function name.
	BindingNameOverride string
}

// Package computegraph assembles GPU kernels from a graph of kernel and
// data interface nodes, compiles them, binds them to engine objects and
// schedules their dispatch on the render thread.
package computegraph

import (
	"computegraph/internal/rdg"
	"computegraph/internal/shader"
)

// SourceType names a kind of runtime object that can supply a data
// interface, matched against engine.TypeName.
type SourceType struct {
	Name string
}

// DataInterface is the authoring-time description of an external data
// source as seen by kernels. Implementations are immutable and may be
// shared by several graph nodes.
type DataInterface interface {
	// Name is the interface class name used in logs and registries.
	Name() string

	// SupportedInputs are the functions kernels read through.
	// Edge binding indices refer to this order, so it must be stable.
	SupportedInputs() []shader.FunctionDesc

	// SupportedOutputs are the functions kernels write through.
	SupportedOutputs() []shader.FunctionDesc

	// ShaderParameters adds the interface's parameter struct to b as a
	// nested struct named uid.
	ShaderParameters(uid string, b *shader.StructBuilder)

	// Source returns the shader snippet. It names its own symbols with
	// DI_LOCAL(x) and its scalar parameters with DI_PARAM(x).
	Source(d shader.Dialect) string

	// SourceTypes lists the runtime objects CreateDataProvider expects,
	// in the order of its sources argument.
	SourceTypes() []SourceType

	// CreateDataProvider binds the interface to sources. It never panics;
	// unusable sources give a provider whose IsValid is false.
	CreateDataProvider(sources []any, inputMask, outputMask uint64) DataProvider
}

// DataProvider is a DataInterface bound to concrete runtime objects.
// It is owned by one Instance and lives on the game thread.
type DataProvider interface {
	IsValid() bool

	// RenderProxy returns a new single-frame proxy. Ownership passes to
	// the caller.
	RenderProxy() RenderProxy
}

// RenderProxy is the render-thread counterpart of a DataProvider for one
// frame. It is owned by the TaskWorker from enqueue until release.
type RenderProxy interface {
	// AllocateResources is called once per frame before any Bindings call.
	AllocateResources(b *rdg.Builder)

	// InvocationCount is the number of dispatches for a kernel this proxy
	// drives, e.g. one per section.
	InvocationCount() int

	// DispatchDim returns the thread group count for one invocation.
	DispatchDim(invocation int, groupSize [3]int) [3]int

	// Bindings writes the proxy's parameters for one invocation into out
	// under the nested struct uid. The invocation is always below
	// InvocationCount: a proxy with fewer invocations than the kernel's
	// execution proxy is bound with its last one, and a proxy with none is
	// not bound.
	Bindings(invocation int, uid string, out *shader.Bindings)
}

// Releaser is implemented by render proxies that hold resources beyond
// the frame's builder. Release is called exactly once.
type Releaser interface {
	Release()
}

// ProviderBase holds the connection masks of a provider. Bit b of
// InputMask is set when input function b of the interface is connected.
type ProviderBase struct {
	InputMask  uint64
	OutputMask uint64
}

// Masks returns the input and output masks.
func (p ProviderBase) Masks() (in, out uint64) {
	return p.InputMask, p.OutputMask
}

// InputConnected reports whether input function i is connected.
func (p ProviderBase) InputConnected(i int) bool {
	return i >= 0 && i < 64 && p.InputMask&(1<<i) != 0
}

// OutputConnected reports whether output function i is connected.
func (p ProviderBase) OutputConnected(i int) bool {
	return i >= 0 && i < 64 && p.OutputMask&(1<<i) != 0
}

// InvalidProvider is the degenerate provider returned for unusable sources.
type InvalidProvider struct {
	ProviderBase
	Err error
}

// NewInvalidProvider returns a provider that is never valid.
func NewInvalidProvider(err error, inputMask, outputMask uint64) *InvalidProvider {
	return &InvalidProvider{ProviderBase: ProviderBase{inputMask, outputMask}, Err: err}
}

func (p *InvalidProvider) IsValid() bool { return false }

func (p *InvalidProvider) RenderProxy() RenderProxy { return nil }

// DispatchDimFor returns the thread group count covering elements
// threads along X.
func DispatchDimFor(elements int, groupSize [3]int) [3]int {
	gx := max(groupSize[0], 1)
	if elements <= 0 {
		return [3]int{0, 1, 1}
	}
	return [3]int{(elements + gx - 1) / gx, 1, 1}
}

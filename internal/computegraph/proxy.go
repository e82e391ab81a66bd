package computegraph

import (
	"computegraph/internal/shader"
)

// BoundDataInterface is a data interface referenced by a kernel.
type BoundDataInterface struct {
	Index int
	UID   string
}

// KernelInvocation is the render-thread description of one kernel.
type KernelInvocation struct {
	Name        string
	KernelIndex int
	GroupSize   [3]int
	Resources   *KernelResourceSet
	Metadata    *shader.ParametersMetadata
	Bound       []BoundDataInterface

	// ExecutionIndex is the data interface whose provider sets the
	// invocation and dispatch counts, or -1 if there is none.
	ExecutionIndex int
}

// ShaderMap returns the compiled shader for fl, or nil.
func (k *KernelInvocation) ShaderMap(fl shader.FeatureLevel) *shader.ShaderMap {
	res := k.Resources.Get(fl)
	if res == nil {
		return nil
	}
	return res.ShaderMap()
}

// GraphProxy is an immutable snapshot of a graph for one frame.
// Kernels are in index order; empty kernel slots are left out.
type GraphProxy struct {
	GraphName string
	Kernels   []KernelInvocation
}

// RenderProxy snapshots the graph as of the last UpdateResources.
func (g *Graph) RenderProxy() *GraphProxy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := &GraphProxy{GraphName: g.Name}
	for k, plan := range g.plans {
		if plan == nil || k >= len(g.resources) {
			continue
		}
		p.Kernels = append(p.Kernels, KernelInvocation{
			Name:           plan.name,
			KernelIndex:    k,
			GroupSize:      plan.groupSize,
			Resources:      g.resources[k],
			Metadata:       plan.metadata,
			Bound:          plan.bound,
			ExecutionIndex: plan.exec,
		})
	}
	return p
}

// IsReady reports whether every kernel has a complete shader map for fl.
func (p *GraphProxy) IsReady(fl shader.FeatureLevel) bool {
	for i := range p.Kernels {
		if !p.Kernels[i].ShaderMap(fl).IsComplete() {
			return false
		}
	}
	return true
}

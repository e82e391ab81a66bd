package computegraph

import (
	"log/slog"
	"reflect"

	"computegraph/internal/engine"
	"computegraph/internal/shader"
)

// InstanceState is the binding state of an Instance.
type InstanceState int

const (
	Unbound InstanceState = iota
	BoundValid
	BoundInvalid
)

func (s InstanceState) String() string {
	switch s {
	case BoundValid:
		return "bound-valid"
	case BoundInvalid:
		return "bound-invalid"
	}
	return "unbound"
}

// Instance binds a graph to one owner's runtime objects and enqueues its
// work each frame. It is used from the game thread.
type Instance struct {
	group    string
	owner    string
	fallback func()
	level    shader.FeatureLevel
	log      *slog.Logger

	state      InstanceState
	providers  []DataProvider
	graph      *Graph
	binding    any
	generation uint64
}

// InstanceOption configures an Instance.
type InstanceOption func(*Instance)

// WithExecutionGroup sets the group work is enqueued to. The default is
// GroupEndOfFrameUpdate.
func WithExecutionGroup(group string) InstanceOption {
	return func(in *Instance) { in.group = group }
}

// WithOwnerName names the owner in scheduler logs.
func WithOwnerName(name string) InstanceOption {
	return func(in *Instance) { in.owner = name }
}

// WithFallback sets the function run on the render thread when the
// graph is not compiled at submission time.
func WithFallback(fn func()) InstanceOption {
	return func(in *Instance) { in.fallback = fn }
}

// WithFeatureLevel sets the feature level providers are validated for.
func WithFeatureLevel(fl shader.FeatureLevel) InstanceOption {
	return func(in *Instance) { in.level = fl }
}

// NewInstance returns an unbound instance.
func NewInstance(opts ...InstanceOption) *Instance {
	in := &Instance{group: GroupEndOfFrameUpdate, level: shader.SM5}
	for _, o := range opts {
		o(in)
	}
	in.log = slog.Default().With("instance", in.owner)
	return in
}

// State returns the binding state.
func (in *Instance) State() InstanceState {
	return in.state
}

// DataProviders returns the providers, aligned with the graph's data
// interfaces.
func (in *Instance) DataProviders() []DataProvider {
	return in.providers
}

// ExecutionGroup returns the group work is enqueued to.
func (in *Instance) ExecutionGroup() string {
	return in.group
}

// Reset drops the providers and returns to Unbound.
func (in *Instance) Reset() {
	in.providers = nil
	in.graph, in.binding = nil, nil
	in.state = Unbound
}

// Bind creates providers for graph and binding unless they already
// exist for the same binding and graph generation. It reports whether
// providers were recreated.
func (in *Instance) Bind(g *Graph, binding any) bool {
	if in.state != Unbound && in.graph == g && sameBinding(in.binding, binding) && g != nil && in.generation == g.Generation() {
		return false
	}
	in.CreateDataProviders(g, binding)
	return true
}

func sameBinding(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// CreateDataProviders replaces the providers with a fresh set for graph
// and binding, then validates them.
func (in *Instance) CreateDataProviders(g *Graph, binding any) {
	in.Reset()
	if g == nil {
		return
	}
	in.graph, in.binding = g, binding
	in.generation = g.Generation()
	in.providers = g.CreateDataProviders(binding)
	in.state = BoundInvalid
	for i, p := range in.providers {
		if ip, ok := p.(*InvalidProvider); ok {
			in.log.Debug("data provider invalid", "graph", g.Name, "index", i, "err", ip.Err)
		}
	}
	in.ValidateDataProviders(g)
}

// ValidateDataProviders reports whether the graph is compiled and every
// data interface slot has a valid provider. One bad provider fails the
// whole instance.
func (in *Instance) ValidateDataProviders(g *Graph) bool {
	ok := g != nil && in.validate(g)
	if in.state != Unbound {
		if ok {
			in.state = BoundValid
		} else {
			in.state = BoundInvalid
		}
	}
	return ok
}

func (in *Instance) validate(g *Graph) bool {
	if !g.IsCompiled(in.level) {
		return false
	}
	dis := g.dataInterfaces()
	if len(in.providers) != len(dis) {
		return false
	}
	for i, di := range dis {
		if di == nil {
			continue
		}
		if p := in.providers[i]; p == nil || !p.IsValid() {
			return false
		}
	}
	return true
}

// EnqueueWork posts this frame's work for g to the scene's render
// thread. It returns false without side effects when the graph, scene or
// compute worker is missing, and false when providers are not valid.
func (in *Instance) EnqueueWork(g *Graph, scene Scene) bool {
	if g == nil || scene == nil {
		return false
	}
	worker := scene.ComputeWorker()
	thread := scene.RenderThread()
	if worker == nil || thread == nil {
		return false
	}
	if n := g.NumDataInterfaces(); len(in.providers) != n {
		in.log.Error("programming error: data providers do not match graph", "graph", g.Name, "providers", len(in.providers), "dataInterfaces", n)
		return false
	}
	if !in.ValidateDataProviders(g) {
		return false
	}

	proxies := make([]RenderProxy, len(in.providers))
	for i, p := range in.providers {
		if p != nil {
			proxies[i] = p.RenderProxy()
		}
	}
	gp := g.RenderProxy()
	group, owner, fallback := in.group, in.owner, in.fallback
	err := thread.Enqueue(func() {
		worker.Enqueue(group, owner, gp, proxies, fallback)
	})
	if err != nil {
		releaseProxies(proxies)
		in.log.Debug("render thread closed, work dropped", "graph", g.Name, "err", err)
		return false
	}
	return true
}

// CreateDataProviders creates one provider per data interface slot for
// binding. Empty slots stay nil.
func (g *Graph) CreateDataProviders(binding any) []DataProvider {
	dis := g.dataInterfaces()
	out := make([]DataProvider, len(dis))
	for i, di := range dis {
		if di == nil {
			continue
		}
		in, outMask := g.ConnectionMasks(i)
		out[i] = di.CreateDataProvider(ResolveSources(di.SourceTypes(), binding), in, outMask)
	}
	return out
}

// ResolveSources finds a runtime object for each source type: the
// binding itself when its type matches, else the owning GameObject for
// "GameObject", else a component of the owner with that type name.
// Unresolved entries are nil.
func ResolveSources(types []SourceType, binding any) []any {
	sources := make([]any, len(types))
	owner := engine.OwnerOf(binding)
	for i, st := range types {
		switch {
		case binding != nil && engine.TypeName(binding) == st.Name:
			sources[i] = binding
		case st.Name == "GameObject" && owner != nil:
			sources[i] = owner
		default:
			if c := owner.FindComponentByTypeName(st.Name); c != nil {
				sources[i] = c
			}
		}
	}
	return sources
}

package computegraph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"computegraph/internal/shader"
)

// Graph is a DAG of kernels and data interfaces connected by edges.
//
// The exported slices describe the graph. Set them before the graph is
// shared; afterwards use the Add and Set methods, which take the
// authoring lock. Slots may be nil: a nil kernel or data interface
// contributes nothing and never fails the rest of the graph.
type Graph struct {
	Name           string
	DataInterfaces []DataInterface
	Kernels        []*Kernel
	Edges          []GraphEdge

	mu        sync.RWMutex
	queue     *shader.CompileQueue
	platform  shader.Platform
	levels    []shader.FeatureLevel
	resources []*KernelResourceSet
	plans     []*kernelPlan

	generation atomic.Uint64

	idMu sync.Mutex
	ids  []string

	log *slog.Logger
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithCompileQueue sets the queue kernels are compiled on.
func WithCompileQueue(q *shader.CompileQueue) GraphOption {
	return func(g *Graph) { g.queue = q }
}

// WithFeatureLevels sets the feature levels UpdateResources compiles.
func WithFeatureLevels(levels ...shader.FeatureLevel) GraphOption {
	return func(g *Graph) { g.levels = slices.Clone(levels) }
}

// WithPlatform sets the running shader platform.
func WithPlatform(p shader.Platform) GraphOption {
	return func(g *Graph) { g.platform = p }
}

// WithLogger sets the graph logger.
func WithLogger(l *slog.Logger) GraphOption {
	return func(g *Graph) { g.log = l }
}

// NewGraph returns an empty graph. Without options it compiles
// synchronously with the source compiler for SM5 on the null platform.
func NewGraph(name string, opts ...GraphOption) *Graph {
	g := &Graph{
		Name:     name,
		platform: shader.PlatformNull,
		levels:   []shader.FeatureLevel{shader.SM5},
	}
	for _, o := range opts {
		o(g)
	}
	if g.queue == nil {
		g.queue = shader.NewCompileQueue(shader.SourceCompiler{}, shader.QueueOptions{Mode: shader.CompileSync})
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	g.log = g.log.With("graph", name)
	return g
}

// Generation changes whenever the topology or kernel sources change.
// Instances use it to know when to recreate providers.
func (g *Graph) Generation() uint64 {
	return g.generation.Load()
}

// FeatureLevels returns the levels UpdateResources compiles.
func (g *Graph) FeatureLevels() []shader.FeatureLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.levels)
}

// AddDataInterface appends a data interface node and returns its index.
func (g *Graph) AddDataInterface(di DataInterface) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DataInterfaces = append(g.DataInterfaces, di)
	g.generation.Add(1)
	return len(g.DataInterfaces) - 1
}

// AddKernel appends a kernel node and returns its index.
func (g *Graph) AddKernel(k *Kernel) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Kernels = append(g.Kernels, k)
	g.generation.Add(1)
	return len(g.Kernels) - 1
}

// AddEdge appends an edge and returns its index.
func (g *Graph) AddEdge(e GraphEdge) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Edges = append(g.Edges, e)
	g.generation.Add(1)
	return len(g.Edges) - 1
}

// SetKernelSource replaces the source of kernel k. Call UpdateResources
// afterwards to recompile.
func (g *Graph) SetKernelSource(k int, src *KernelSource) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if k < 0 || k >= len(g.Kernels) || g.Kernels[k] == nil {
		return fmt.Errorf("computegraph: %s has no kernel %d", g.Name, k)
	}
	g.Kernels[k].Source = src
	g.generation.Add(1)
	return nil
}

// NumDataInterfaces returns the number of data interface slots.
func (g *Graph) NumDataInterfaces() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.DataInterfaces)
}

// DataInterfaceID returns the graph-unique id of data interface slot i.
// Ids are assigned once and never change for the life of the graph.
func (g *Graph) DataInterfaceID(i int) string {
	if i < 0 {
		return ""
	}
	g.idMu.Lock()
	defer g.idMu.Unlock()
	for len(g.ids) <= i {
		g.ids = append(g.ids, fmt.Sprintf("DI%03d", len(g.ids)))
	}
	return g.ids[i]
}

// boundEdge is a valid edge with its resolved functions.
type boundEdge struct {
	GraphEdge
	kernelFn shader.FunctionDesc
	diFn     shader.FunctionDesc
}

// checkEdgeLocked resolves both endpoints of e. edge is the index used
// in the returned error, or -1.
func (g *Graph) checkEdgeLocked(edge int, e GraphEdge) (boundEdge, *AuthoringError) {
	fail := func(kind AuthoringErrorKind, format string, args ...any) (boundEdge, *AuthoringError) {
		ae := authoringError(kind, edge, e.KernelIndex, e.DataInterfaceIndex, format, args...)
		return boundEdge{}, &ae
	}
	if e.KernelIndex < 0 || e.KernelIndex >= len(g.Kernels) {
		return fail(ErrKindIndex, "kernel index out of range [0,%d)", len(g.Kernels))
	}
	k := g.Kernels[e.KernelIndex]
	if k == nil {
		return fail(ErrKindNil, "kernel slot is empty")
	}
	if k.Source == nil {
		return fail(ErrKindNil, "kernel %s has no source", k.Name)
	}
	if e.DataInterfaceIndex < 0 || e.DataInterfaceIndex >= len(g.DataInterfaces) {
		return fail(ErrKindIndex, "data interface index out of range [0,%d)", len(g.DataInterfaces))
	}
	di := g.DataInterfaces[e.DataInterfaceIndex]
	if di == nil {
		return fail(ErrKindNil, "data interface slot is empty")
	}
	if e.DataInterfaceBindingIndex >= 64 {
		return fail(ErrKindBindingRange, "data interface binding %d does not fit a 64-bit mask", e.DataInterfaceBindingIndex)
	}
	kernelFns, diFns := k.Source.ExternalOutputs, di.SupportedOutputs()
	dir := "output"
	if e.IsKernelInput {
		kernelFns, diFns = k.Source.ExternalInputs, di.SupportedInputs()
		dir = "input"
	}
	if e.KernelBindingIndex < 0 || e.KernelBindingIndex >= len(kernelFns) {
		return fail(ErrKindIndex, "kernel %s has no external %s %d", k.Name, dir, e.KernelBindingIndex)
	}
	if e.DataInterfaceBindingIndex < 0 || e.DataInterfaceBindingIndex >= len(diFns) {
		return fail(ErrKindIndex, "%s has no %s function %d", di.Name(), dir, e.DataInterfaceBindingIndex)
	}
	be := boundEdge{GraphEdge: e, kernelFn: kernelFns[e.KernelBindingIndex], diFn: diFns[e.DataInterfaceBindingIndex]}
	if !be.kernelFn.SignatureMatches(be.diFn) {
		return fail(ErrKindSignature, "kernel function %s does not match %s.%s", be.kernelFn, di.Name(), be.diFn)
	}
	return be, nil
}

// EdgeIsValid reports whether both endpoints of e exist and their
// function signatures match.
func (g *Graph) EdgeIsValid(e GraphEdge) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := g.checkEdgeLocked(-1, e)
	return err == nil
}

// ConnectionMasks returns the input and output masks of data interface
// di: bit b is set iff a valid edge binds function b of that direction.
func (g *Graph) ConnectionMasks(di int) (in, out uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i, e := range g.Edges {
		if e.DataInterfaceIndex != di {
			continue
		}
		if _, err := g.checkEdgeLocked(i, e); err != nil {
			continue
		}
		if e.IsKernelInput {
			in |= 1 << e.DataInterfaceBindingIndex
		} else {
			out |= 1 << e.DataInterfaceBindingIndex
		}
	}
	return in, out
}

// kernelEdgesLocked returns the valid edges of kernel k in edge order.
// When two edges bind the same kernel function slot the first wins.
func (g *Graph) kernelEdgesLocked(k int) []boundEdge {
	type slot struct {
		input bool
		index int
	}
	seen := map[slot]bool{}
	var out []boundEdge
	for i, e := range g.Edges {
		if e.KernelIndex != k {
			continue
		}
		be, err := g.checkEdgeLocked(i, e)
		if err != nil {
			continue
		}
		s := slot{e.IsKernelInput, e.KernelBindingIndex}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, be)
	}
	return out
}

// referencedDataInterfaces returns the distinct data interface indices
// of edges in ascending order.
func referencedDataInterfaces(edges []boundEdge) []int {
	var out []int
	for _, e := range edges {
		if !slices.Contains(out, e.DataInterfaceIndex) {
			out = append(out, e.DataInterfaceIndex)
		}
	}
	slices.Sort(out)
	return out
}

// BuildKernelSource returns the assembled shader source of kernel k, or
// "" for an empty slot or a kernel without source.
func (g *Graph) BuildKernelSource(k int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if k < 0 || k >= len(g.Kernels) || g.Kernels[k] == nil || g.Kernels[k].Source == nil {
		return ""
	}
	edges := g.kernelEdgesLocked(k)
	return g.assembleLocked(k, edges, g.buildMetadataLocked(k, edges))
}

// BuildShaderMetadata returns the merged parameter struct of kernel k:
// its own parameters followed by one nested struct per referenced data
// interface. It returns nil for an empty slot or a kernel without source.
func (g *Graph) BuildShaderMetadata(k int) *shader.ParametersMetadata {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if k < 0 || k >= len(g.Kernels) || g.Kernels[k] == nil || g.Kernels[k].Source == nil {
		return nil
	}
	return g.buildMetadataLocked(k, g.kernelEdgesLocked(k))
}

func (g *Graph) buildMetadataLocked(k int, edges []boundEdge) *shader.ParametersMetadata {
	kernel := g.Kernels[k]
	b := shader.NewStructBuilder()
	for _, p := range kernel.Source.InputParams {
		b.AddParam(p.Name, p.Type)
	}
	for _, i := range referencedDataInterfaces(edges) {
		g.DataInterfaces[i].ShaderParameters(g.DataInterfaceID(i), b)
	}
	if err := b.Err(); err != nil {
		g.log.Warn("kernel parameters", "kernel", kernel.Name, "err", err)
	}
	return b.Build(fmt.Sprintf("%s_%s_Parameters", g.Name, kernel.Name))
}

// kernelPlan is everything derived from the topology for one kernel,
// computed by UpdateResources and shared with render proxies.
type kernelPlan struct {
	name       string
	entryPoint string
	dialect    shader.Dialect
	groupSize  [3]int
	isDefault  bool

	source   string
	metadata *shader.ParametersMetadata
	hash     shader.Hash
	bound    []BoundDataInterface
	exec     int
}

func (g *Graph) planLocked(k int) *kernelPlan {
	kernel := g.Kernels[k]
	edges := g.kernelEdgesLocked(k)
	md := g.buildMetadataLocked(k, edges)
	src := g.assembleLocked(k, edges, md)
	ksHash := kernel.Source.Hash()
	p := &kernelPlan{
		name:       kernel.Name,
		entryPoint: kernel.Source.EntryPoint,
		dialect:    kernel.Source.Dialect,
		groupSize:  kernel.groupSize(),
		isDefault:  kernel.IsDefault,
		source:     src,
		metadata:   md,
		hash:       shader.HashOf([]byte(src), ksHash[:]),
		exec:       -1,
	}
	for _, i := range referencedDataInterfaces(edges) {
		p.bound = append(p.bound, BoundDataInterface{Index: i, UID: g.DataInterfaceID(i)})
	}
	switch x := kernel.ExecutionDataInterface; {
	case x >= 0 && x < len(g.DataInterfaces) && g.DataInterfaces[x] != nil:
		p.exec = x
	default:
		for _, e := range edges {
			if !e.IsKernelInput {
				p.exec = e.DataInterfaceIndex
				break
			}
		}
		if p.exec < 0 && len(p.bound) > 0 {
			p.exec = p.bound[0].Index
		}
	}
	return p
}

func (g *Graph) friendlyName(k int) string {
	return g.Name + "/" + g.Kernels[k].Name
}

func (p *kernelPlan) job(friendly string, platform shader.Platform, fl shader.FeatureLevel) *shader.CompileJob {
	return &shader.CompileJob{
		FriendlyName: friendly,
		EntryPoint:   p.entryPoint,
		Source:       p.source,
		Dialect:      p.dialect,
		Hash:         p.hash,
		Metadata:     p.metadata,
		GroupSize:    p.groupSize,
		Platform:     platform,
		FeatureLevel: fl,
	}
}

type pendingCompile struct {
	res *KernelResource
	job *shader.CompileJob
}

// syncResourcesLocked makes resources and plans match the kernels.
func (g *Graph) syncResourcesLocked() {
	n := len(g.Kernels)
	if len(g.resources) > n {
		g.resources = g.resources[:n]
	}
	for len(g.resources) < n {
		g.resources = append(g.resources, nil)
	}
	g.plans = make([]*kernelPlan, n)
	for k, kernel := range g.Kernels {
		if kernel == nil || kernel.Source == nil {
			g.resources[k] = nil
			continue
		}
		if name := g.friendlyName(k); g.resources[k] == nil || g.resources[k].Name() != name {
			g.resources[k] = NewKernelResourceSet(name)
		}
		g.plans[k] = g.planLocked(k)
	}
}

// UpdateResources rebuilds the kernel resources after an edit and
// submits compiles for every kernel whose source changed. Afterwards
// there is one resource set per kernel index; empty slots hold nil.
func (g *Graph) UpdateResources() {
	g.mu.Lock()
	g.syncResourcesLocked()
	var work []pendingCompile
	for k, plan := range g.plans {
		if plan == nil {
			continue
		}
		for _, fl := range g.levels {
			res := g.resources[k].GetOrCreate(fl, g.platform)
			if res.needsCompile(plan.hash, plan.isDefault) {
				work = append(work, pendingCompile{res, plan.job(g.friendlyName(k), g.platform, fl)})
			}
		}
	}
	g.generation.Add(1)
	g.mu.Unlock()

	for _, w := range work {
		g.submit(w, false)
	}
}

func (g *Graph) submit(w pendingCompile, sync bool) {
	hash := w.job.Hash
	onDone := func(sm *shader.ShaderMap, err error) {
		ce, fatal := w.res.complete(hash, sm, err)
		if ce == nil {
			if err == nil {
				g.log.Debug("kernel compiled", "resource", w.job.FriendlyName, "level", w.job.FeatureLevel, "platform", w.job.Platform)
			}
			return
		}
		g.logCompileError(ce)
		if fatal {
			FatalHandler(ce)
		}
	}
	g.log.Debug("compiling kernel", "resource", w.job.FriendlyName, "level", w.job.FeatureLevel, "hash", hash.String())
	var h *shader.CompileHandle
	if sync {
		h = g.queue.SubmitSync(context.Background(), w.job, onDone)
	} else {
		h = g.queue.Submit(context.Background(), w.job, onDone)
	}
	w.res.setHandle(h)
}

func (g *Graph) logCompileError(ce *CompileError) {
	g.log.Error("kernel compile failed", "resource", ce.Resource, "level", ce.FeatureLevel, "platform", ce.Platform)
	for _, d := range ce.Diagnostics {
		g.log.Error("  "+d, "resource", ce.Resource)
	}
}

// IsCompiled reports whether every kernel index has a complete shader
// map for fl. A graph without kernels is compiled.
func (g *Graph) IsCompiled(fl shader.FeatureLevel) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.Kernels) == 0 {
		return true
	}
	if len(g.resources) != len(g.Kernels) {
		return false
	}
	for _, set := range g.resources {
		res := set.Get(fl)
		if res == nil || !res.ShaderMap().IsComplete() {
			return false
		}
	}
	return true
}

// FinishCompilation blocks until every pending compile of the graph has
// finished.
func (g *Graph) FinishCompilation() {
	g.mu.RLock()
	var all []*KernelResource
	for _, set := range g.resources {
		if set != nil {
			all = append(all, set.all()...)
		}
	}
	g.mu.RUnlock()
	for _, r := range all {
		r.wait(context.Background())
	}
}

// Resources returns the resource set of kernel k, or nil.
func (g *Graph) Resources(k int) *KernelResourceSet {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if k < 0 || k >= len(g.resources) {
		return nil
	}
	return g.resources[k]
}

// CacheResourcesForCooking compiles every kernel for platform p at the
// given levels, synchronously, into the cooked slots.
func (g *Graph) CacheResourcesForCooking(p shader.Platform, levels ...shader.FeatureLevel) {
	g.mu.Lock()
	g.syncResourcesLocked()
	var work []pendingCompile
	for k, plan := range g.plans {
		if plan == nil {
			continue
		}
		for _, fl := range levels {
			res := g.resources[k].GetOrCreateCooked(p, fl)
			if res.needsCompile(plan.hash, plan.isDefault) {
				work = append(work, pendingCompile{res, plan.job(g.friendlyName(k), p, fl)})
			}
		}
	}
	g.mu.Unlock()

	for _, w := range work {
		g.submit(w, true)
	}
}

// IsCachedForCooking reports whether every kernel has finished cooking
// for platform p.
func (g *Graph) IsCachedForCooking(p shader.Platform) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, kernel := range g.Kernels {
		if kernel == nil || kernel.Source == nil {
			continue
		}
		if k >= len(g.resources) || g.resources[k] == nil {
			return false
		}
		cooked := g.resources[k].CookedFor(p)
		if len(cooked) == 0 {
			return false
		}
		for _, res := range cooked {
			if res.IsCompiling() || !res.ShaderMap().IsComplete() {
				return false
			}
		}
	}
	return true
}

// ClearCachedForCooking drops the cooked resources of every kernel.
func (g *Graph) ClearCachedForCooking() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, set := range g.resources {
		if set != nil {
			set.ClearCooked()
		}
	}
}

func (g *Graph) dataInterfaces() []DataInterface {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.DataInterfaces)
}

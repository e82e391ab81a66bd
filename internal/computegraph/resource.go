package computegraph

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"

	"computegraph/internal/shader"
)

// KernelResource is the compiled shader of one kernel for one feature
// level, and for one platform while cooking.
type KernelResource struct {
	FriendlyName string
	FeatureLevel shader.FeatureLevel
	Platform     shader.Platform

	shaderMap atomic.Pointer[shader.ShaderMap]

	mu          sync.Mutex
	isDefault   bool
	hash        shader.Hash
	compiling   bool
	handle      *shader.CompileHandle
	diagnostics []string
}

// ShaderMap returns the compiled shader, or nil while compiling or after
// a failure.
func (r *KernelResource) ShaderMap() *shader.ShaderMap {
	return r.shaderMap.Load()
}

// Hash returns the content hash of the last submitted source.
func (r *KernelResource) Hash() shader.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hash
}

// IsCompiling reports whether a compile is pending.
func (r *KernelResource) IsCompiling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compiling
}

// Diagnostics returns the messages of the last failed compile.
func (r *KernelResource) Diagnostics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.diagnostics...)
}

// needsCompile reports whether source with hash must be compiled and, if
// so, marks the compile as started.
func (r *KernelResource) needsCompile(hash shader.Hash, isDefault bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isDefault = isDefault
	if r.hash == hash && (r.compiling || r.shaderMap.Load() != nil) {
		return false
	}
	r.hash = hash
	r.compiling = true
	r.diagnostics = nil
	r.shaderMap.Store(nil)
	return true
}

func (r *KernelResource) setHandle(h *shader.CompileHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = h
}

// complete stores a compile result if it belongs to the current hash.
// It returns the failure to report, if any, and whether it is fatal.
func (r *KernelResource) complete(hash shader.Hash, sm *shader.ShaderMap, err error) (*CompileError, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hash != r.hash {
		return nil, false
	}
	r.compiling = false
	if err == nil {
		r.shaderMap.Store(sm)
		return nil, false
	}
	ce := &CompileError{
		Resource:     r.FriendlyName,
		FeatureLevel: r.FeatureLevel,
		Platform:     r.Platform,
		Err:          err,
	}
	var cf *shader.CompileFailure
	if errors.As(err, &cf) {
		ce.Diagnostics = cf.Diagnostics
	} else {
		ce.Diagnostics = []string{err.Error()}
	}
	r.diagnostics = ce.Diagnostics
	return ce, r.isDefault
}

// wait blocks until the pending compile, if any, finishes.
func (r *KernelResource) wait(ctx context.Context) {
	r.mu.Lock()
	h := r.handle
	r.mu.Unlock()
	if h != nil {
		h.Wait(ctx)
	}
}

// KernelResourceSet holds the resources of one kernel index: one per
// feature level for the running platform and, while cooking, one per
// platform and feature level. Each slot is owned by the set.
type KernelResourceSet struct {
	mu     sync.Mutex
	name   string
	levels map[shader.FeatureLevel]*KernelResource
	cooked map[shader.Platform]map[shader.FeatureLevel]*KernelResource
}

// NewKernelResourceSet returns an empty set for the resource friendly name.
func NewKernelResourceSet(name string) *KernelResourceSet {
	return &KernelResourceSet{
		name:   name,
		levels: map[shader.FeatureLevel]*KernelResource{},
		cooked: map[shader.Platform]map[shader.FeatureLevel]*KernelResource{},
	}
}

// Name returns the friendly name of the kernel.
func (s *KernelResourceSet) Name() string {
	return s.name
}

// GetOrCreate returns the resource for fl, creating it on first use.
func (s *KernelResourceSet) GetOrCreate(fl shader.FeatureLevel, platform shader.Platform) *KernelResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.levels[fl]
	if !ok {
		r = &KernelResource{FriendlyName: s.name, FeatureLevel: fl, Platform: platform}
		s.levels[fl] = r
	}
	return r
}

// Get returns the resource for fl, or nil.
func (s *KernelResourceSet) Get(fl shader.FeatureLevel) *KernelResource {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[fl]
}

// GetOrCreateCooked returns the cooked resource for platform p and fl.
func (s *KernelResourceSet) GetOrCreateCooked(p shader.Platform, fl shader.FeatureLevel) *KernelResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	byLevel, ok := s.cooked[p]
	if !ok {
		byLevel = map[shader.FeatureLevel]*KernelResource{}
		s.cooked[p] = byLevel
	}
	r, ok := byLevel[fl]
	if !ok {
		r = &KernelResource{FriendlyName: s.name, FeatureLevel: fl, Platform: p}
		byLevel[fl] = r
	}
	return r
}

// CookedFor returns the cooked resources of platform p by feature level.
func (s *KernelResourceSet) CookedFor(p shader.Platform) map[shader.FeatureLevel]*KernelResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.cooked[p])
}

// ClearCooked drops every cooked resource.
func (s *KernelResourceSet) ClearCooked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cooked)
}

func (s *KernelResourceSet) all() []*KernelResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*KernelResource
	for _, r := range s.levels {
		out = append(out, r)
	}
	for _, byLevel := range s.cooked {
		for _, r := range byLevel {
			out = append(out, r)
		}
	}
	return out
}

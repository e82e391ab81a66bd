package computegraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ValidateGraph checks the topology and returns every problem found.
//
// Besides per-edge checks it enforces the dispatch order: kernels run in
// index order, so a kernel may not read a data interface that a later
// kernel writes, and kernels may not depend on each other in a cycle.
// A kernel that reads and writes the same data interface updates it in
// place and is accepted.
func (g *Graph) ValidateGraph() []AuthoringError {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []AuthoringError
	type slot struct {
		kernel int
		input  bool
		index  int
	}
	bound := map[slot]int{}
	readers := map[int][]int{}
	writers := map[int][]int{}

	for i, e := range g.Edges {
		if _, err := g.checkEdgeLocked(i, e); err != nil {
			errs = append(errs, *err)
			continue
		}
		s := slot{e.KernelIndex, e.IsKernelInput, e.KernelBindingIndex}
		if first, ok := bound[s]; ok {
			errs = append(errs, authoringError(ErrKindDuplicateBinding, i, e.KernelIndex, e.DataInterfaceIndex,
				"kernel function slot %d is already bound by edge %d", e.KernelBindingIndex, first))
			continue
		}
		bound[s] = i
		if e.IsKernelInput {
			readers[e.DataInterfaceIndex] = appendUnique(readers[e.DataInterfaceIndex], e.KernelIndex)
		} else {
			writers[e.DataInterfaceIndex] = appendUnique(writers[e.DataInterfaceIndex], e.KernelIndex)
		}
	}

	// deps[w] lists the kernels that read what w writes.
	deps := map[int][]int{}
	dis := make([]int, 0, len(writers))
	for di := range writers {
		dis = append(dis, di)
	}
	slices.Sort(dis)
	for _, di := range dis {
		for _, w := range writers[di] {
			for _, r := range readers[di] {
				if r == w {
					continue
				}
				deps[w] = appendUnique(deps[w], r)
				if w > r {
					errs = append(errs, authoringError(ErrKindLateWriter, -1, r, di,
						"kernel %d reads data written by later kernel %d", r, w))
				}
			}
		}
	}
	for _, cycle := range findCycles(len(g.Kernels), deps) {
		parts := make([]string, len(cycle))
		for i, k := range cycle {
			parts[i] = fmt.Sprint(k)
		}
		errs = append(errs, authoringError(ErrKindCycle, -1, cycle[0], -1,
			"dependency cycle %s", strings.Join(parts, " -> ")))
	}
	return errs
}

// Validate returns the ValidateGraph problems joined into one error.
func (g *Graph) Validate() error {
	aerrs := g.ValidateGraph()
	errs := make([]error, len(aerrs))
	for i, e := range aerrs {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func appendUnique(s []int, v int) []int {
	if slices.Contains(s, v) {
		return s
	}
	s = append(s, v)
	slices.Sort(s)
	return s
}

// findCycles returns one cycle per back edge found by a depth-first walk
// over n nodes. Each cycle starts and ends with the same node.
func findCycles(n int, adj map[int][]int) [][]int {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, n)
	var stack []int
	var cycles [][]int
	var visit func(u int)
	visit = func(u int) {
		color[u] = grey
		stack = append(stack, u)
		for _, v := range adj[u] {
			if v < 0 || v >= n {
				continue
			}
			switch color[v] {
			case white:
				visit(v)
			case grey:
				start := slices.Index(stack, v)
				cycle := append(slices.Clone(stack[start:]), v)
				cycles = append(cycles, cycle)
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
	}
	for u := 0; u < n; u++ {
		if color[u] == white {
			visit(u)
		}
	}
	return cycles
}

package graphfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"computegraph/internal/computegraph"

	"cogentcore.org/core/base/errors"
	"github.com/fsnotify/fsnotify"
)

// Watcher recompiles kernels whose source files change on disk.
type Watcher struct {
	doc   *Document
	graph *computegraph.Graph
	fs    *fsnotify.Watcher
	log   *slog.Logger

	// kernels maps a source path to the kernels reading it.
	kernels map[string][]int

	mu   sync.Mutex
	last map[int]string

	reloads atomic.Uint64

	// OnReload, when set, is called after each reload attempt.
	OnReload func(kernel int, err error)
}

// NewWatcher watches the source files of doc and applies changes to g,
// which must have been built from doc.
func NewWatcher(doc *Document, g *computegraph.Graph) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("graphfile: %w", err)
	}
	w := &Watcher{
		doc:     doc,
		graph:   g,
		fs:      fw,
		log:     slog.Default().With("component", "graph-watcher", "graph", doc.Name),
		kernels: map[string][]int{},
		last:    map[int]string{},
	}
	dirs := map[string]bool{}
	for i := range doc.Kernels {
		p := doc.SourcePath(i)
		if p == "" {
			continue
		}
		w.kernels[p] = append(w.kernels[p], i)
		if src, err := doc.KernelSource(i); err == nil {
			w.last[i] = src.Source
		}
		// Editors often replace files by rename, so watch the directory.
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("graphfile: watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Files returns the watched source files.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.kernels))
	for p := range w.kernels {
		out = append(out, p)
	}
	return out
}

// Reloads returns the number of kernels whose source was replaced.
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Run handles file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if _, watched := w.kernels[filepath.Clean(ev.Name)]; watched {
				w.Reload(ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			errors.Log(err)
		}
	}
}

// Reload rereads path and recompiles the kernels using it. Kernels whose
// source did not change are left alone; a file that fails to read keeps
// the previous source. It reports whether any kernel was replaced.
func (w *Watcher) Reload(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := false
	for _, k := range w.kernels[filepath.Clean(path)] {
		src, err := w.doc.KernelSource(k)
		if err == nil && src.Source == w.last[k] {
			continue
		}
		if err == nil {
			err = w.graph.SetKernelSource(k, src)
		}
		if errors.Log(err) == nil {
			w.last[k] = src.Source
			w.reloads.Add(1)
			changed = true
			w.log.Info("kernel source reloaded", "kernel", w.doc.Kernels[k].Name, "file", path)
		}
		if w.OnReload != nil {
			w.OnReload(k, err)
		}
	}
	if changed {
		w.graph.UpdateResources()
	}
	return changed
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

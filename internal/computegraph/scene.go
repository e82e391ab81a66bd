package computegraph

import "computegraph/internal/rthread"

// Scene is the world a graph instance runs in.
type Scene interface {
	// ComputeWorker returns the scene's scheduler, or nil when compute
	// is not available.
	ComputeWorker() *TaskWorker

	// RenderThread returns the thread the worker runs on.
	RenderThread() *rthread.Thread
}

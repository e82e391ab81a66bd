//go:build !darwin

package world

import "log/slog"

func initializeCompute(bool) Compute {
	// Disabled off darwin due to EGL/WebGPU conflicts with NVIDIA on X11
	slog.Info("compute: GPU disabled on this platform, using recording backend")
	return Headless()
}

//go:build darwin

package world

import (
	"log/slog"

	"computegraph/internal/compute"
)

func initializeCompute(headless bool) Compute {
	if headless {
		return Headless()
	}
	// Metal on Mac works fine
	info, err := compute.Initialize()
	if err != nil {
		slog.Warn("compute shaders unavailable, using recording backend", "err", err)
		return Headless()
	}
	slog.Info("compute", "backend", info.Backend, "vendor", info.Vendor, "name", info.Name, "type", info.DeviceType)
	s := compute.Get()
	return Compute{
		Backend:  compute.NewBackend(s),
		Compiler: compute.NewCompiler(s),
		Platform: compute.PlatformWebGPU,
		WGSLOnly: true,
		GPU:      true,
	}
}

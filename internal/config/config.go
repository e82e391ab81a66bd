// Package config loads the runtime configuration of the compute graph
// tools from a TOML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"computegraph/internal/shader"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the file Load reads when no path is given.
const DefaultPath = "computegraph.toml"

// Environment overrides.
const (
	EnvCompileMode = "COMPUTEGRAPH_COMPILE_MODE"
	EnvHeadless    = "COMPUTEGRAPH_HEADLESS"
	EnvTrace       = "COMPUTEGRAPH_TRACE"
)

type Shader struct {
	Dialect       string   `toml:"dialect"`
	CompileMode   string   `toml:"compile_mode"`
	Workers       int      `toml:"workers"`
	CacheSize     int      `toml:"cache_size"`
	FeatureLevels []string `toml:"feature_levels"`
	Platform      string   `toml:"platform"`
}

type Scheduler struct {
	// Groups are submitted in this order each frame.
	Groups           []string `toml:"groups"`
	RenderQueueDepth int      `toml:"render_queue_depth"`
}

type Trace struct {
	// Exporter is "none", "stdout" or "otlphttp".
	Exporter string `toml:"exporter"`
	Endpoint string `toml:"endpoint"`
}

type Debug struct {
	Overlay    bool `toml:"overlay"`
	Headless   bool `toml:"headless"`
	Automation bool `toml:"automation"`
}

// Config is the full configuration.
type Config struct {
	Shader    Shader    `toml:"shader"`
	Scheduler Scheduler `toml:"scheduler"`
	Trace     Trace     `toml:"trace"`
	Debug     Debug     `toml:"debug"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Shader: Shader{
			Dialect:       "wgsl",
			CompileMode:   "auto",
			Workers:       4,
			CacheSize:     256,
			FeatureLevels: []string{"SM5"},
		},
		Scheduler: Scheduler{
			Groups:           []string{"Immediate", "EndOfFrameUpdate"},
			RenderQueueDepth: 64,
		},
		Trace: Trace{Exporter: "none"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	c := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: %w", err)
	default:
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCompileMode); ok {
		c.Shader.CompileMode = v
	}
	if v, ok := lookup(EnvHeadless); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvHeadless, err)
		}
		c.Debug.Headless = b
	}
	if v, ok := lookup(EnvTrace); ok {
		c.Trace.Exporter = v
	}
	return nil
}

// Validate checks every enumerated field parses.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.CompileMode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Dialect(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.FeatureLevels(); err != nil {
		errs = append(errs, err)
	}
	switch c.Trace.Exporter {
	case "", "none", "stdout", "otlphttp":
	default:
		errs = append(errs, fmt.Errorf("config: unknown trace exporter %q", c.Trace.Exporter))
	}
	if len(c.Scheduler.Groups) == 0 {
		errs = append(errs, errors.New("config: scheduler.groups is empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) CompileMode() (shader.CompileMode, error) {
	return shader.ParseCompileMode(c.Shader.CompileMode)
}

func (c *Config) Dialect() (shader.Dialect, error) {
	return shader.ParseDialect(c.Shader.Dialect)
}

// FeatureLevels returns the parsed feature levels, SM5 when none are set.
func (c *Config) FeatureLevels() ([]shader.FeatureLevel, error) {
	if len(c.Shader.FeatureLevels) == 0 {
		return []shader.FeatureLevel{shader.SM5}, nil
	}
	out := make([]shader.FeatureLevel, 0, len(c.Shader.FeatureLevels))
	for _, s := range c.Shader.FeatureLevels {
		fl, err := shader.ParseFeatureLevel(s)
		if err != nil {
			return nil, err
		}
		out = append(out, fl)
	}
	return out, nil
}

// QueueOptions returns compile queue options for this configuration.
func (c *Config) QueueOptions() shader.QueueOptions {
	mode, _ := c.CompileMode()
	return shader.QueueOptions{
		Mode:       mode,
		Headless:   c.Debug.Headless,
		Automation: c.Debug.Automation,
		Workers:    c.Shader.Workers,
		CacheSize:  c.Shader.CacheSize,
	}
}

// Save writes c to path as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

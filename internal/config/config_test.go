package config

import (
	"os"
	"path/filepath"
	"testing"

	"computegraph/internal/shader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Scheduler.Groups, c.Scheduler.Groups)
	mode, err := c.CompileMode()
	require.NoError(t, err)
	assert.Equal(t, shader.CompileAuto, mode)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[shader]
dialect = "hlsl"
compile_mode = "async"
feature_levels = ["SM5", "SM6"]

[scheduler]
groups = ["Immediate"]

[debug]
automation = true
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	d, _ := c.Dialect()
	assert.Equal(t, shader.HLSL, d)
	fls, err := c.FeatureLevels()
	require.NoError(t, err)
	assert.Equal(t, []shader.FeatureLevel{shader.SM5, shader.SM6}, fls)
	assert.Equal(t, []string{"Immediate"}, c.Scheduler.Groups)
	assert.Equal(t, 4, c.Shader.Workers, "unset keys keep defaults")

	opts := c.QueueOptions()
	assert.Equal(t, shader.CompileAsync, opts.Mode)
	assert.True(t, opts.Automation)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvCompileMode, "sync")
	t.Setenv(EnvHeadless, "true")
	t.Setenv(EnvTrace, "stdout")

	c, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "sync", c.Shader.CompileMode)
	assert.True(t, c.Debug.Headless)
	assert.Equal(t, "stdout", c.Trace.Exporter)
}

func TestInvalidValues(t *testing.T) {
	c := Default()
	c.Shader.CompileMode = "eventually"
	c.Trace.Exporter = "carrier-pigeon"
	c.Scheduler.Groups = nil
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "eventually")
	assert.ErrorContains(t, err, "carrier-pigeon")
	assert.ErrorContains(t, err, "groups")

	t.Setenv(EnvHeadless, "maybe")
	_, err = Load(filepath.Join(t.TempDir(), "none.toml"))
	assert.ErrorContains(t, err, EnvHeadless)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	c := Default()
	c.Debug.Overlay = true
	require.NoError(t, c.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.True(t, got.Debug.Overlay)
}

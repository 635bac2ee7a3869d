package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/logger"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_nodes: 64
dialect: cuda
fusion: split-at-reduce
log_format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64, cfg.MaxNodes)
	assert.Equal(t, "cuda", cfg.Dialect)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, Default().ArenaBytes, cfg.ArenaBytes)

	opts, err := cfg.CompilerOptions(logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, codegen.SplitAtReduce, opts.Policy)
	assert.Equal(t, 64, opts.MaxNodes)
	assert.Equal(t, codegen.DefaultKernelName, opts.KernelName)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_nodes: [1, 2"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"arena", func(c *Config) { c.ArenaBytes = 0 }},
		{"nodes", func(c *Config) { c.MaxNodes = -1 }},
		{"dialect", func(c *Config) { c.Dialect = "glsl" }},
		{"fusion", func(c *Config) { c.Fusion = "greedy" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestDialects(t *testing.T) {
	cfg := Default()
	cfg.Dialect = "all"
	ds, err := cfg.Dialects()
	require.NoError(t, err)
	assert.Len(t, ds, len(codegen.Dialects()))

	cfg.Dialect = "opencl"
	ds, err = cfg.Dialects()
	require.NoError(t, err)
	assert.Equal(t, []codegen.Dialect{codegen.OpenCL{}}, ds)
}

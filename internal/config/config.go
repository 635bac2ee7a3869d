// Package config loads the ccml configuration file
// (~/.config/ccml/config.yaml) shared by the CLI and the HTTP service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/logger"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds compiler, backend and server settings.
type Config struct {
	// Compiler
	ArenaBytes int    `yaml:"arena_bytes"`
	MaxNodes   int    `yaml:"max_nodes"`
	Dialect    string `yaml:"dialect"`
	Fusion     string `yaml:"fusion"`
	KernelName string `yaml:"kernel_name"`

	// Execution
	Backend string `yaml:"backend"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// Default returns the settings used when no file overrides them.
func Default() Config {
	return Config{
		ArenaBytes:    64 << 20,
		MaxNodes:      compiler.DefaultMaxNodes,
		Dialect:       "metal",
		Fusion:        codegen.FuseAll.String(),
		KernelName:    codegen.DefaultKernelName,
		Backend:       "cpu",
		LogLevel:      "info",
		LogFormat:     "text",
		ServerAddress: "127.0.0.1:8080",
	}
}

// Path returns the default config file location, or "" when the user
// config directory is unknown.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ccml", "config.yaml")
}

// Load reads path over Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	if c.ArenaBytes <= 0 {
		return fmt.Errorf("%w: arena_bytes must be positive, got %d", ErrInvalid, c.ArenaBytes)
	}
	if c.MaxNodes <= 0 || c.MaxNodes > graph.MaxNodesLimit {
		return fmt.Errorf("%w: max_nodes must be in 1..%d, got %d", ErrInvalid, graph.MaxNodesLimit, c.MaxNodes)
	}
	if c.Dialect != "all" {
		if _, err := codegen.DialectByName(c.Dialect); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if _, err := codegen.ParsePolicy(c.Fusion); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	return nil
}

// Dialects resolves the dialect setting; "all" selects every dialect.
func (c Config) Dialects() ([]codegen.Dialect, error) {
	if c.Dialect == "all" {
		return codegen.Dialects(), nil
	}
	d, err := codegen.DialectByName(c.Dialect)
	if err != nil {
		return nil, err
	}
	return []codegen.Dialect{d}, nil
}

// CompilerOptions converts the compiler settings.
func (c Config) CompilerOptions(log logger.Logger) (compiler.Options, error) {
	policy, err := codegen.ParsePolicy(c.Fusion)
	if err != nil {
		return compiler.Options{}, err
	}
	return compiler.Options{
		MaxNodes:   c.MaxNodes,
		Policy:     policy,
		KernelName: c.KernelName,
		Logger:     log,
	}, nil
}

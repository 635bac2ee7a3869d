package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/ccml/internal/config"
	"github.com/born-ml/ccml/internal/logger"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	debugLog   bool

	dialect    string
	fusion     string
	kernelName string
	maxNodes   int64
	arenaBytes int64
	backendArg string

	// cfg is the config file merged with the flags that were set.
	cfg config.Config
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       config.Path(),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debugLog,
		},
	}
}

func compilerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "fusion",
			Usage:       "kernel fusion policy (fuse-all, split-at-reduce)",
			Value:       "fuse-all",
			Destination: &fusion,
		},
		&cli.StringFlag{
			Name:        "kernel-name",
			Usage:       "name of the generated entry point",
			Value:       "ccml_kernel",
			Destination: &kernelName,
		},
		&cli.Int64Flag{
			Name:        "max-nodes",
			Usage:       "maximum number of graph nodes",
			Value:       1024,
			Destination: &maxNodes,
		},
		&cli.Int64Flag{
			Name:        "arena-bytes",
			Usage:       "arena capacity in bytes",
			Value:       64 << 20,
			Destination: &arenaBytes,
		},
	}
}

func backendFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "backend",
		Usage:       "execution backend (cpu, webgpu)",
		Value:       "cpu",
		Destination: &backendArg,
	}
}

// setup loads the config file, applies the global flags and installs the logger.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return ctx, err
	}
	cfg = loaded
	if cmd.IsSet("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = logFormat
	}
	if debugLog {
		cfg.LogLevel = "debug"
	}
	log := logger.ForFormat(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	return logger.WithContext(ctx, log), nil
}

// applyCompilerFlags overrides config values with the compiler flags that
// were set explicitly, then validates the result.
func applyCompilerFlags(cmd *cli.Command) error {
	if cmd.IsSet("dialect") {
		cfg.Dialect = dialect
	}
	if cmd.IsSet("fusion") {
		cfg.Fusion = fusion
	}
	if cmd.IsSet("kernel-name") {
		cfg.KernelName = kernelName
	}
	if cmd.IsSet("max-nodes") {
		cfg.MaxNodes = int(maxNodes)
	}
	if cmd.IsSet("arena-bytes") {
		cfg.ArenaBytes = int(arenaBytes)
	}
	if cmd.IsSet("backend") {
		cfg.Backend = backendArg
	}
	return cfg.Validate()
}

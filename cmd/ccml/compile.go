package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/internal/config"
	"github.com/born-ml/ccml/internal/graphspec"
	"github.com/born-ml/ccml/internal/logger"
	"github.com/born-ml/ccml/internal/serialization"
	"github.com/born-ml/ccml/internal/tensor"
)

func compileCmd() *cli.Command {
	var (
		outDir   string
		manifest bool
		weights  bool
	)
	return &cli.Command{
		Name:      "compile",
		Usage:     "Emit kernel sources for a graph description",
		ArgsUsage: "<graph.yaml>",
		Flags: append(compilerFlags(),
			&cli.StringFlag{
				Name:        "dialect",
				Aliases:     []string{"d"},
				Usage:       "target dialect (metal, opencl, cuda, wgsl, all)",
				Value:       "metal",
				Destination: &dialect,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output directory",
				Value:       ".",
				Destination: &outDir,
			},
			&cli.BoolFlag{
				Name:        "manifest",
				Usage:       "also write the adapter manifest per dialect",
				Destination: &manifest,
			},
			&cli.BoolFlag{
				Name:        "weights",
				Usage:       "also write constant buffers as <kernel>.safetensors",
				Destination: &weights,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("compile: expected one graph file")
			}
			if err := applyCompilerFlags(cmd); err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			dialects, err := cfg.Dialects()
			if err != nil {
				return err
			}

			return withBuilt(cfg, log, cmd.Args().First(), func(_ *graphspec.Built, r *compiler.Result) error {
				files, err := writeSources(ctx, r, dialects, outDir, cfg.KernelName, manifest)
				if err != nil {
					return err
				}
				if weights {
					path := filepath.Join(outDir, cfg.KernelName+".safetensors")
					meta := map[string]string{"kernel": cfg.KernelName}
					if err := serialization.WriteFile(path, programTensors(r, nil), meta); err != nil {
						return err
					}
					files = append(files, path)
				}
				for _, f := range files {
					log.Info("wrote", "file", f)
				}
				return nil
			})
		},
	}
}

// withBuilt builds the graph at path in a fresh arena and hands the
// result to fn before the arena is released.
func withBuilt(cfg config.Config, log logger.Logger, path string, fn func(*graphspec.Built, *compiler.Result) error) error {
	spec, err := graphspec.ReadFile(path)
	if err != nil {
		return err
	}
	a, err := arena.New(cfg.ArenaBytes)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Release(); err != nil {
			log.Warn("release arena", "error", err)
		}
	}()

	ctx := tensor.NewContext(a)
	built, err := spec.Build(ctx)
	if err != nil {
		return err
	}
	opts, err := cfg.CompilerOptions(log)
	if err != nil {
		return err
	}
	r, err := compiler.Compile(ctx, built.Root, opts)
	if err != nil {
		return err
	}
	log.Info("compiled", "graph", path, "nodes", r.Graph.Len(), "kernels", len(r.Program.Kernels),
		"cse", r.Rewritten, "arena_used", a.Used())
	return fn(built, r)
}

// writeSources prints every dialect concurrently and writes one file per
// kernel, plus a manifest per dialect when requested. It returns the
// written paths in dialect order.
func writeSources(ctx context.Context, r *compiler.Result, dialects []codegen.Dialect, dir, name string, manifest bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	written := make([][]string, len(dialects))
	g, _ := errgroup.WithContext(ctx)
	for i, d := range dialects {
		g.Go(func() error {
			srcs, err := r.Emit(d)
			if err != nil {
				return fmt.Errorf("%s: %w", d.Name(), err)
			}
			for _, src := range srcs {
				path := filepath.Join(dir, src.Kernel+"."+d.Ext())
				if err := os.WriteFile(path, []byte(src.Code), 0o644); err != nil { //nolint:gosec // G306: generated sources are not secret
					return err
				}
				written[i] = append(written[i], path)
			}
			if !manifest {
				return nil
			}
			m, err := r.Manifest(d)
			if err != nil {
				return fmt.Errorf("%s: %w", d.Name(), err)
			}
			data, err := m.Marshal()
			if err != nil {
				return err
			}
			path := filepath.Join(dir, fmt.Sprintf("%s.%s.json", name, d.Name()))
			if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: manifests are not secret
				return err
			}
			written[i] = append(written[i], path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []string
	for _, paths := range written {
		out = append(out, paths...)
	}
	return out, nil
}

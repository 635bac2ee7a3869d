package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/internal/graphspec"
	"github.com/born-ml/ccml/internal/logger"
	"github.com/born-ml/ccml/internal/serialization"
)

// runOutput is printed by the run command.
type runOutput struct {
	Backend   string               `json:"backend"`
	Root      []float32            `json:"root"`
	Gradients map[string][]float32 `json:"gradients,omitempty"`
}

func runCmd() *cli.Command {
	var inputsPath, dumpPath string
	return &cli.Command{
		Name:      "run",
		Usage:     "Compile a graph and evaluate it with its gradients",
		ArgsUsage: "<graph.yaml>",
		Flags: append(compilerFlags(),
			backendFlag(),
			&cli.StringFlag{
				Name:        "inputs",
				Aliases:     []string{"i"},
				Usage:       "YAML, JSON or SafeTensors file mapping placeholder names to values",
				Destination: &inputsPath,
			},
			&cli.StringFlag{
				Name:        "dump",
				Usage:       "write every program buffer after the run to a SafeTensors file",
				Destination: &dumpPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("run: expected one graph file")
			}
			if err := applyCompilerFlags(cmd); err != nil {
				return err
			}
			log := logger.FromContext(ctx)

			inputs, err := readInputs(inputsPath)
			if err != nil {
				return err
			}
			b, release, err := openBackend(cfg.Backend, log)
			if err != nil {
				return err
			}
			defer release()

			return withBuilt(cfg, log, cmd.Args().First(), func(built *graphspec.Built, r *compiler.Result) error {
				data, err := built.Inputs(inputs)
				if err != nil {
					return err
				}
				res, err := compiler.Execute(ctx, b, r, data)
				if err != nil {
					return err
				}
				out := runOutput{Backend: b.Name()}
				if out.Root, err = r.Read(res, r.Root); err != nil {
					return err
				}
				if out.Gradients, err = gradients(built, r, res); err != nil {
					return err
				}
				if dumpPath != "" {
					meta := map[string]string{"backend": b.Name()}
					if err := serialization.WriteFile(dumpPath, programTensors(r, res), meta); err != nil {
						return err
					}
					log.Info("wrote", "file", dumpPath)
				}
				return printJSON(cmd.Root().Writer, out)
			})
		},
	}
}

// readInputs parses the inputs file. JSON documents are valid YAML.
func readInputs(path string) (map[string][]float32, error) {
	if path == "" {
		return nil, nil
	}
	if filepath.Ext(path) == ".safetensors" {
		tensors, _, err := serialization.ReadFile(path)
		if err != nil {
			return nil, err
		}
		inputs := make(map[string][]float32, len(tensors))
		for name, t := range tensors {
			inputs[name] = t.Data
		}
		return inputs, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, err
	}
	var inputs map[string][]float32
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("inputs %s: %w", path, err)
	}
	return inputs, nil
}

// gradients reads the gradient of every named tensor that has one.
func gradients(built *graphspec.Built, r *compiler.Result, res map[int][]float32) (map[string][]float32, error) {
	names := make([]string, 0, len(built.Nodes))
	for name := range built.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var out map[string][]float32
	for _, name := range names {
		node := built.Nodes[name]
		if _, ok := r.Gradients[node]; !ok {
			continue
		}
		g, err := r.Gradient(res, node)
		if err != nil {
			return nil, fmt.Errorf("gradient of %s: %w", name, err)
		}
		if out == nil {
			out = make(map[string][]float32)
		}
		out[name] = g
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Command ccml compiles tensor graph descriptions into GPU kernels.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "ccml",
		Usage:  "Tensor graph to GPU kernel compiler",
		Flags:  globalFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			compileCmd(),
			runCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

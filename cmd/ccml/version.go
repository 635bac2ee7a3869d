package main

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/urfave/cli/v3"
)

// Version is the release version (set via -ldflags).
var Version = ""

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			version, commit := buildInfo()
			_, _ = fmt.Fprintf(w, "version: %s\n", version)
			if commit != "" {
				_, _ = fmt.Fprintf(w, "commit:  %s\n", commit)
			}
			return nil
		},
	}
}

func buildInfo() (version, commit string) {
	version = Version
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if version == "" {
			version = "devel"
		}
		return version, ""
	}
	if version == "" {
		version = info.Main.Version
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			commit = s.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		}
	}
	return version, commit
}

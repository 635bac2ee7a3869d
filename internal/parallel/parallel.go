// Package parallel spreads the work-items of a kernel dispatch over goroutines.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Upper bound on concurrently running chunks.
	MinChunkSize int  // Minimum work-items per chunk.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential returns a Config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// For executes f(i) for i in [0, n). Chunks stop being scheduled once ctx
// is done, and the context error is returned.
func For(ctx context.Context, n int, f func(i int), cfg Config) error {
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < cfg.MinChunkSize {
		for i := range n {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			f(i)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.NumWorkers)
	chunk := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	for start := 0; start < n; start += chunk {
		if gctx.Err() != nil {
			break
		}
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				f(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ForGrid executes f for every point of an x*y*z dispatch grid, x varying fastest.
func ForGrid(ctx context.Context, x, y, z int, f func(gx, gy, gz int), cfg Config) error {
	plane := x * y
	return For(ctx, plane*z, func(i int) {
		f(i%x, (i/x)%y, i/plane)
	}, cfg)
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/ccml/internal/api"
	"github.com/born-ml/ccml/internal/logger"
)

const readHeaderTimeout = 10 * time.Second

func serveCmd() *cli.Command {
	var addr string
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the compiler over HTTP",
		Flags: append(compilerFlags(),
			backendFlag(),
			&cli.StringFlag{
				Name:        "address",
				Aliases:     []string{"addr"},
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.IsSet("address") {
				cfg.ServerAddress = addr
			}
			if err := applyCompilerFlags(cmd); err != nil {
				return err
			}
			log := logger.FromContext(ctx)

			b, release, err := openBackend(cfg.Backend, log)
			if err != nil {
				log.Warn("run endpoint disabled", "backend", cfg.Backend, "error", err)
				b, release = nil, func() {}
			}
			defer release()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			api.NewServer(cfg, log, b).Register(e)

			log.Info("starting server", "address", cfg.ServerAddress)
			sc := echo.StartConfig{
				Address: cfg.ServerAddress,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readHeaderTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

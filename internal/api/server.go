// Package api serves the compiler over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/internal/config"
	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/graphspec"
	"github.com/born-ml/ccml/internal/logger"
	"github.com/born-ml/ccml/internal/tensor"
)

// Server handles compile and run requests. Every request gets its own
// arena, released when the response is written.
type Server struct {
	cfg     config.Config
	log     logger.Logger
	backend backend.Backend
}

// NewServer creates a Server. b may be nil, which disables /v1/run.
func NewServer(cfg config.Config, log logger.Logger, b backend.Backend) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{cfg: cfg, log: log, backend: b}
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/compile", s.handleCompile)
	e.POST("/v1/run", s.handleRun)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompile(c *echo.Context) error {
	req, err := decodeJSON[CompileRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	cfg := s.cfg
	if req.Dialect != "" {
		cfg.Dialect = req.Dialect
	}
	if req.Fusion != "" {
		cfg.Fusion = req.Fusion
	}
	if req.KernelName != "" {
		cfg.KernelName = req.KernelName
	}
	dialects, err := cfg.Dialects()
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	id := uuid.NewString()
	log := s.log.With("request", id)
	err = s.withGraph(cfg, log, &req.Graph, func(_ *graphspec.Built, r *compiler.Result) error {
		resp := CompileResponse{ID: id, Nodes: r.Graph.Len(), Rewritten: r.Rewritten}
		for _, d := range dialects {
			m, err := r.Manifest(d)
			if err != nil {
				return err
			}
			resp.Manifests = append(resp.Manifests, m)
		}
		log.Info("compiled", "nodes", resp.Nodes, "kernels", len(r.Program.Kernels), "dialects", len(dialects))
		return c.JSON(http.StatusOK, resp)
	})
	return s.fail(c, log, err)
}

func (s *Server) handleRun(c *echo.Context) error {
	if s.backend == nil {
		return writeError(c, http.StatusServiceUnavailable, "server_error", "no backend configured")
	}
	req, err := decodeJSON[RunRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	cfg := s.cfg
	if req.Fusion != "" {
		cfg.Fusion = req.Fusion
	}

	id := uuid.NewString()
	log := s.log.With("request", id)
	err = s.withGraph(cfg, log, &req.Graph, func(b *graphspec.Built, r *compiler.Result) error {
		inputs, err := b.Inputs(req.Inputs)
		if err != nil {
			return err
		}
		res, err := compiler.Execute(c.Request().Context(), s.backend, r, inputs)
		if err != nil {
			return err
		}
		root, err := r.Read(res, r.Root)
		if err != nil {
			return err
		}
		resp := RunResponse{ID: id, Backend: s.backend.Name(), Root: root}
		for name, node := range b.Nodes {
			if _, ok := r.Gradients[node]; !ok {
				continue
			}
			g, err := r.Gradient(res, node)
			if err != nil {
				return err
			}
			if resp.Gradients == nil {
				resp.Gradients = make(map[string][]float32)
			}
			resp.Gradients[name] = g
		}
		log.Info("ran", "backend", s.backend.Name(), "kernels", len(r.Program.Kernels))
		return c.JSON(http.StatusOK, resp)
	})
	return s.fail(c, log, err)
}

// withGraph builds and compiles spec in a fresh arena and calls fn while
// the arena is alive.
func (s *Server) withGraph(cfg config.Config, log logger.Logger, spec *graphspec.Spec,
	fn func(*graphspec.Built, *compiler.Result) error,
) error {
	if err := cfg.Validate(); err != nil {
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
	return fn(built, r)
}

// fail maps pipeline errors to responses. Errors caused by the request
// body are 400s, the rest are logged and reported as 500s.
func (s *Server) fail(c *echo.Context, log logger.Logger, err error) error {
	if err == nil {
		return nil
	}
	if isClientError(err) {
		return writeBadRequest(c, err.Error())
	}
	log.Error("request failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
}

func isClientError(err error) bool {
	for _, target := range []error{
		config.ErrInvalid,
		arena.ErrExhausted,
		graphspec.ErrUnknownName, graphspec.ErrDuplicateName, graphspec.ErrUnknownOp, graphspec.ErrArity,
		tensor.ErrInvalidShape, tensor.ErrBroadcast, tensor.ErrReshapeSize, tensor.ErrInvalidAxes,
		tensor.ErrInvalidPermutation, tensor.ErrUnknownDataType, tensor.ErrDataSize,
		tensor.ErrNotMatrix, tensor.ErrMatMulShape,
		codegen.ErrUnknownDialect, codegen.ErrUnknownPolicy,
		backend.ErrInputSize,
		graph.ErrTooManyNodes,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{Message: msg, Type: errType},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("compiled", "kernels", 2)

	out := buf.String()
	assert.Contains(t, out, `"msg":"compiled"`)
	assert.Contains(t, out, `"kernels":2`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Debug("hidden too")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := ForFormat(&buf, "text", "debug").With("request", "abc").WithGroup("graph")
	log.Debug("forward", "nodes", 5)

	out := buf.String()
	assert.Contains(t, out, "request=abc")
	assert.Contains(t, out, "graph.nodes=5")
}

func TestContext(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNop(t *testing.T) {
	t.Parallel()
	Nop().Error("nothing happens")
}

package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansInheritTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-7")
	_, score := StartChildSpan(ctx, "score")
	score.SetAttr("candidates", 3)
	score.End()

	require.Len(t, root.Children, 1)
	assert.Equal(t, "req-7", root.Children[0].TraceID)
	assert.Equal(t, 3, root.Children[0].Attrs["candidates"])
	assert.Same(t, root, SpanFromContext(ctx))
}

func TestDetachedChild(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Empty(t, span.TraceID)
}

func TestFinishLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, fast := StartSpan(context.Background(), "fast", "a")
	StartChildSpan(ctx, "child")
	fast.Finish(logger, time.Hour)
	assert.Empty(t, buf.String())

	ctx, slow := StartSpan(context.Background(), "slow", "b")
	_, child := StartChildSpan(ctx, "metadata")
	child.End()
	slow.StartTime = slow.StartTime.Add(-time.Second)
	slow.Finish(logger, time.Millisecond)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "slow", first["span"])
	assert.Equal(t, "metadata", second["span"])
	assert.EqualValues(t, 1, second["depth"])
	assert.Equal(t, "b", second["trace_id"])
}

package adapters

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologTracerSpanLifecycle(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tracer.StartSpan(context.Background(), "provider.complete", map[string]any{"attempt": 1})
	tracer.Event(ctx, "tool_calls", map[string]any{"count": 2})
	finish(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"span":"provider.complete"`)
	assert.Contains(t, out, `"event":"span_start"`)
	assert.Contains(t, out, `"event":"tool_calls"`)
	assert.Contains(t, out, `"count":2`)
	assert.Contains(t, out, `"event":"span_end"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestZerologTracerEventOutsideSpan(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	tracer.Event(context.Background(), "orphan", nil)

	assert.Contains(t, buf.String(), `"event":"orphan"`)
	assert.NotContains(t, buf.String(), `"span"`)
}

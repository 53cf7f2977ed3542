package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetWithoutInitReturnsNop(t *testing.T) {
	Set(nil)
	assert.NotNil(t, Get())
	assert.NotPanics(t, func() { Info("noop") })
}

func TestFromBaseAddsContextFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithRequestID(ctx, "req-1")
	FromBase(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "trace-1", fields["trace_id"])
		assert.Equal(t, "req-1", fields["request_id"])
	}
}

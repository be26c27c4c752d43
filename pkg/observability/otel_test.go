package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartAndEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx, span := StartSpan(context.Background(), "analytics.compute_dashboard", attribute.Int64("user.id", 7))

	var buf bytes.Buffer
	logger := UpdateLoggerWithTraceContext(ctx, NewLogger(InfoLevel, &buf))
	logger.Info("computing")
	assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())

	EndSpan(span, nil)

	_, failing := StartSpan(context.Background(), "analytics.snapshot_run")
	EndSpan(failing, errors.New("db down"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "analytics.compute_dashboard", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.Int64("user.id", 7))

	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "db down", ended[1].Status().Description)
	require.Len(t, ended[1].Events(), 1)
}

func TestUpdateLoggerWithoutSpan(t *testing.T) {
	logger := NopLogger()
	assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))
}

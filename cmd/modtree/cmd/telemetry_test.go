package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracerProvider_Global(t *testing.T) {
	tp, shutdown, err := newTracerProvider(context.Background(), TracingOptions{})
	require.NoError(t, err)
	assert.Equal(t, otel.GetTracerProvider(), tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewTracerProvider_OTLP(t *testing.T) {
	tp, shutdown, err := newTracerProvider(context.Background(), TracingOptions{
		Endpoint: "127.0.0.1:4317",
		Insecure: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = shutdown(ctx)
	})
	assert.IsType(t, &sdktrace.TracerProvider{}, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "check")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitInstallsGlobals(t *testing.T) {
	ctx := context.Background()
	tp, err := Init(ctx, Options{ServiceName: "trackerd", Version: "test", SampleRatio: 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, tp.Shutdown(ctx)) }()

	require.Same(t, tp, otel.GetTracerProvider())

	_, span := Tracer(nil).Start(ctx, "lookup")
	defer span.End()
	require.True(t, span.SpanContext().IsSampled())
}

func TestPropagatorInjectsTraceparent(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	ctx, span := Tracer(tp).Start(context.Background(), "parent")
	defer span.End()

	carrier := propagation.MapCarrier{}
	Propagator().Inject(ctx, carrier)
	require.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

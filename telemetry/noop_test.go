package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/minusxai/minusx/telemetry"
)

func TestNoopImplementationsNeverPanic(t *testing.T) {
	ctx := context.Background()

	var logger telemetry.Logger = telemetry.NewNoopLogger()
	logger.Debug(ctx, "msg", "k", "v")
	logger.Info(ctx, "msg")
	logger.Warn(ctx, "msg")
	logger.Error(ctx, "msg", "err", errors.New("boom"))

	var metrics telemetry.Metrics = telemetry.NewNoopMetrics()
	metrics.IncCounter("calls", 1, "tag:a")
	metrics.RecordTimer("latency", time.Second)
	metrics.RecordGauge("inflight", 3)

	var tracer telemetry.Tracer = telemetry.NewNoopTracer()
	spanCtx, span := tracer.Start(ctx, "op")
	if spanCtx == nil {
		t.Fatalf("want a non-nil context back from Start")
	}
	span.AddEvent("tick")
	span.SetStatus(codes.Ok, "done")
	span.RecordError(errors.New("boom"))
	span.End()

	if tracer.Span(ctx) == nil {
		t.Fatalf("want a non-nil span from Span(ctx)")
	}
}

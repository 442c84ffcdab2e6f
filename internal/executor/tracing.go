// Tracing instrumentation for the executor.
package executor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("taskforge/executor")

// startNodeSpan starts a span for one task execution.
func startNodeSpan(ctx context.Context, name, kind string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "task."+name)
	span.SetAttributes(
		attribute.String("task.name", name),
		attribute.String("task.kind", kind),
	)
	return ctx, span
}

// endNodeSpan ends the task span with outcome info.
func endNodeSpan(span trace.Span, status string, attempts int, err error) {
	span.SetAttributes(
		attribute.String("task.status", status),
		attribute.Int("task.attempts", attempts),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

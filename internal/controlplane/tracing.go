// Tracing instrumentation for the control plane.

package controlplane

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
)

const tracerName = "github.com/fentz26/wfsandbox/internal/controlplane"

// startTaskSpan starts a span for one lifecycle step of task.
func startTaskSpan(ctx context.Context, step string, task *models.Task) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "task."+step)
	span.SetAttributes(
		attribute.String("task.name", task.Name),
		attribute.String("task.workflow", task.Workflow),
	)
	if task.UniqueID != "" {
		span.SetAttributes(attribute.String("task.unique_id", task.UniqueID))
	}
	return ctx, span
}

// endTaskSpan ends the span, recording err and its kind.
func endTaskSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := apperr.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("error.kind", string(kind)))
		}
	}
	span.End()
}

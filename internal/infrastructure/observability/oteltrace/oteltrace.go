package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "bookstore-orders"

type tracer struct{ t trace.Tracer }

// New returns a tracer from the global OpenTelemetry provider. Until a real
// TracerProvider is installed with otel.SetTracerProvider, spans are no-ops that
// still propagate incoming W3C context.
func New(name string) observability.Tracer {
	if name == "" {
		name = defaultTracerName
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}

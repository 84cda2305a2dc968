package workerpresentation

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/bookstore-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "EVT."

// WithEventContext injects a request-scoped logger for background/worker executions.
// Dynamic fields only: trace_id/span_id (if valid), event_id (generated if empty),
// plus caller-provided low-cardinality attributes (e.g. "event", "worker").
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	tel observability.Observability,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.OrNop(tel).Logger()
	}
	if attrs == nil {
		attrs = make(map[string]string)
	}

	fields := make([]observability.Field, 0, 2+len(attrs))

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// EventMiddleware wraps a bus handler in a span named after the event, an event-scoped
// logger and a single event_handled log line.
func EventMiddleware(tel observability.Observability) func(domoutbox.Handler) domoutbox.Handler {
	tel = observability.OrNop(tel)
	return func(next domoutbox.Handler) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) error {
			name := e.EventName()
			ctx, span := tel.Tracer().Start(ctx, spanPrefix+name, attribute.String("event", name))
			defer span.End()

			sc := span.SpanContext()
			ctx = WithEventContext(ctx, logctx.FromOr(ctx, tel.Logger()), tel, sc.TraceID(), sc.SpanID(),
				map[string]string{"event": name})

			start := time.Now()
			err := next(ctx, e)
			_, logger := logctx.Enrich(ctx, tel.Logger(),
				observability.F("latency_ms", time.Since(start).Milliseconds()),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Warn("event_handled", observability.F("outcome", "error"), observability.Err(err))
				return err
			}
			span.SetStatus(codes.Ok, "")
			logger.Info("event_handled", observability.F("outcome", "success"))
			return nil
		}
	}
}

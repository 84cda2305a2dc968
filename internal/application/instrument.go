package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instrumentation carries the tracer, base logger and RED metrics shared by a service's use cases.
type Instrumentation struct {
	tel observability.Observability
	log observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstrumentation(tel observability.Observability, service string) *Instrumentation {
	tel = observability.OrNop(tel)
	metrics := tel.Metrics()
	return &Instrumentation{
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

func (in *Instrumentation) Logger() observability.Logger { return in.log }

func (in *Instrumentation) Metrics() observability.Metrics { return in.tel.Metrics() }

// Execution is one in-flight use case. End must be called exactly once.
type Execution struct {
	in      *Instrumentation
	ctx     context.Context
	span    trace.Span
	useCase string
	start   time.Time
	outcome string
	status  string
	logger  observability.Logger
	fields  []observability.Field
}

// Start opens the span for useCase and binds a use-case logger to the returned context.
func (in *Instrumentation) Start(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Execution) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := in.tel.Tracer().Start(ctx, spanPrefix+spanName, attrs...)

	fields := append([]observability.Field{observability.F("use_case", useCase)},
		logctx.SpanFields(trace.SpanContextFromContext(ctx))...)
	ctx, logger := logctx.Enrich(ctx, in.log, fields...)

	return ctx, &Execution{
		in:      in,
		ctx:     ctx,
		span:    span,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
		logger:  logger,
	}
}

func (e *Execution) Logger() observability.Logger { return e.logger }

func (e *Execution) Span() trace.Span { return e.span }

// Fail marks the execution as failed with a machine-readable status.
func (e *Execution) Fail(status string) {
	e.outcome, e.status = "error", status
}

// Status overrides the status text without changing the outcome.
func (e *Execution) Status(status string) {
	e.status = status
}

// Field adds a field to the final use_case_done line.
func (e *Execution) Field(key string, value any) {
	e.fields = append(e.fields, observability.F(key, value))
}

func (e *Execution) End(err error) {
	if err != nil && e.outcome == "success" {
		e.Fail("ERROR")
	}
	lat := time.Since(e.start).Seconds()

	if e.span != nil {
		if err != nil {
			e.span.RecordError(err)
			e.span.SetStatus(codes.Error, e.status)
		} else {
			e.span.SetStatus(codes.Ok, e.status)
		}
		e.span.End()
	}

	e.in.reqCounter.Add(1,
		observability.L("use_case", e.useCase),
		observability.L("outcome", e.outcome),
	)
	e.in.durHistogram.Observe(lat,
		observability.L("use_case", e.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", e.outcome),
		observability.F("status", e.status),
		observability.F("latency_seconds", lat),
	}, e.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	e.logger.Info("use_case_done", fields...)
}

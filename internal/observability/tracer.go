package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

// InitTracer configures the global tracer provider with a Jaeger exporter.
func InitTracer(serviceName, jaegerEndpoint string) (*sdktrace.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("create jaeger exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) {
	_ = tp.Shutdown(ctx)
}

// spanTracker opens a span per transaction on creation and ends it on
// disposal; outcome events land on the span as span events.
type spanTracker struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// RegisterTracing subscribes a span-per-transaction subscriber for every
// lifecycle event kind.
func RegisterTracing(m *txcoord.Manager, tracerName string) {
	t := &spanTracker{
		tracer: otel.Tracer(tracerName),
		spans:  make(map[string]trace.Span),
	}
	for _, kind := range allEventKinds {
		m.Subscribe(kind, t.handle)
	}
}

func (t *spanTracker) handle(ctx context.Context, ev txcoord.Event) error {
	id := ev.Transaction.ID()

	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case txcoord.EventTransactionCreated, txcoord.EventChildTransactionCreated:
		_, span := t.tracer.Start(ctx, "transaction",
			trace.WithAttributes(
				attribute.String("txcoord.transaction_id", id),
				attribute.String("txcoord.mode", string(ev.Mode)),
				attribute.String("txcoord.isolation", string(ev.Isolation)),
				attribute.Bool("txcoord.ambient", ev.Ambient),
				attribute.Bool("txcoord.child", ev.Kind == txcoord.EventChildTransactionCreated),
			),
		)
		t.spans[id] = span
	case txcoord.EventTransactionDisposed:
		if span, ok := t.spans[id]; ok {
			span.End()
			delete(t.spans, id)
		}
	default:
		if span, ok := t.spans[id]; ok {
			span.AddEvent(string(ev.Kind))
		}
	}
	return nil
}

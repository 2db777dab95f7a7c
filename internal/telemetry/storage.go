package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/types"
)

const storageScopeName = "github.com/mbaren/stride/storage"

// InstrumentedGateway wraps storage.Gateway with OTel tracing and metrics.
// Every method gets a span and is counted in stride.storage.* metrics.
// Use WrapGateway to create one; it returns the original gateway unchanged
// when telemetry is disabled.
type InstrumentedGateway struct {
	inner storage.Gateway
	trace trace.Tracer
	ops   metric.Int64Counter
	dur   metric.Float64Histogram
	errs  metric.Int64Counter
}

// WrapGateway returns g decorated with OTel instrumentation.
// When telemetry is disabled, g is returned as-is with zero overhead.
func WrapGateway(g storage.Gateway) storage.Gateway {
	if !Enabled() {
		return g
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("stride.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("stride.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("stride.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedGateway{
		inner: g,
		trace: Tracer(storageScopeName),
		ops:   ops,
		dur:   dur,
		errs:  errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (g *InstrumentedGateway) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := g.trace.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	g.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (g *InstrumentedGateway) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	g.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (g *InstrumentedGateway) LoadIncomplete(ctx context.Context) ([]*types.Task, error) {
	ctx, span, t := g.op(ctx, "LoadIncomplete")
	v, err := g.inner.LoadIncomplete(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("stride.result.count", len(v)))
	}
	g.done(ctx, span, t, err)
	return v, err
}

func (g *InstrumentedGateway) LoadCompleted(ctx context.Context, limit, offset int) ([]*types.Task, int, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("stride.limit", limit),
		attribute.Int("stride.offset", offset),
	}
	ctx, span, t := g.op(ctx, "LoadCompleted", attrs...)
	v, total, err := g.inner.LoadCompleted(ctx, limit, offset)
	if err == nil {
		span.SetAttributes(attribute.Int("stride.result.count", len(v)))
	}
	g.done(ctx, span, t, err, attrs...)
	return v, total, err
}

func (g *InstrumentedGateway) LoadByIDs(ctx context.Context, ids []string) ([]*types.Task, error) {
	attrs := []attribute.KeyValue{attribute.Int("stride.task.count", len(ids))}
	ctx, span, t := g.op(ctx, "LoadByIDs", attrs...)
	v, err := g.inner.LoadByIDs(ctx, ids)
	g.done(ctx, span, t, err, attrs...)
	return v, err
}

func (g *InstrumentedGateway) Save(ctx context.Context, tasks []*types.Task) error {
	attrs := []attribute.KeyValue{attribute.Int("stride.task.count", len(tasks))}
	ctx, span, t := g.op(ctx, "Save", attrs...)
	err := g.inner.Save(ctx, tasks)
	g.done(ctx, span, t, err, attrs...)
	return err
}

func (g *InstrumentedGateway) Delete(ctx context.Context, ids []string) error {
	attrs := []attribute.KeyValue{attribute.Int("stride.task.count", len(ids))}
	ctx, span, t := g.op(ctx, "Delete", attrs...)
	err := g.inner.Delete(ctx, ids)
	g.done(ctx, span, t, err, attrs...)
	return err
}

func (g *InstrumentedGateway) GenerateID() string {
	return g.inner.GenerateID()
}

func (g *InstrumentedGateway) Close() error {
	return g.inner.Close()
}

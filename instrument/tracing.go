package instrument

import (
	"context"
	"fmt"

	"github.com/delaneyj/cdom/cdom"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "cdom"

type TracingConfig struct {
	// TracerName is the name of the tracer (default: "cdom").
	TracerName string

	// Provider overrides the global tracer provider.
	Provider trace.TracerProvider
}

type TracingOption func(*TracingConfig)

func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = tp
	}
}

// TracingLoader wraps a cdom.Loader with one span per load.
type TracingLoader struct {
	next   cdom.Loader
	tracer trace.Tracer
}

var _ cdom.Loader = (*TracingLoader)(nil)

// NewTracingLoader resolves the tracer from the global provider unless
// WithTracerProvider is given. Configure the provider in main() before the
// System starts loading helpers.
func NewTracingLoader(next cdom.Loader, opts ...TracingOption) *TracingLoader {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.Provider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingLoader{next: next, tracer: tp.Tracer(config.TracerName)}
}

func (l *TracingLoader) Load(ctx context.Context, name string) (*cdom.Helper, error) {
	ctx, span := l.tracer.Start(
		ctx,
		fmt.Sprintf("cdom.load %s", name),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cdom.helper", name)),
	)
	defer span.End()

	h, err := l.next.Load(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cdom.helper_found", h != nil))
	if h != nil {
		span.SetAttributes(attribute.Bool("cdom.helper_mutates", h.Mutates))
	}
	span.SetStatus(codes.Ok, "")
	return h, nil
}

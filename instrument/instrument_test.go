package instrument_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/instrument"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// sample sums the counter values, or histogram sample counts, of every
// series in family name whose labels include want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			switch {
			case m.Counter != nil:
				total += m.GetCounter().GetValue()
			case m.Histogram != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func settle(t *testing.T, sys *cdom.System) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Settle(ctx))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := instrument.NewMetrics(instrument.WithRegistry(reg))

	slow := make(chan struct{})
	sys := cdom.New(
		cdom.WithObserver(m),
		cdom.WithLoader(cdom.LoaderFunc(func(ctx context.Context, name string) (*cdom.Helper, error) {
			if name != "twice" {
				return nil, nil
			}
			<-slow
			return &cdom.Helper{Fn: func(c *cdom.Call, args []any) (any, error) {
				return cdom.ToNumber(args[0]) * 2, nil
			}}, nil
		})),
	)

	t.Run("evaluations by kind", func(t *testing.T) {
		assert.Equal(t, 1.0, sys.Eval("1", nil, nil))
		assert.Equal(t, cdom.Marker("=(null.name)"), sys.Eval("null.name", nil, nil))
		assert.Equal(t, map[string]any{"greeting": "hi"}, sys.EvaluateStructural(map[string]any{"greeting": "hi"}, nil, nil))

		assert.Equal(t, 2.0, sample(t, reg, "cdom_evaluations_total", map[string]string{"kind": "expression"}))
		assert.Equal(t, 1.0, sample(t, reg, "cdom_evaluation_errors_total", map[string]string{"kind": "expression"}))
		assert.Equal(t, 1.0, sample(t, reg, "cdom_evaluations_total", map[string]string{"kind": "structural"}))
		assert.Equal(t, 2.0, sample(t, reg, "cdom_evaluation_duration_seconds", map[string]string{"kind": "expression"}))
	})

	t.Run("notifications", func(t *testing.T) {
		count, err := sys.Signal(1.0, cdom.WithName("count"))
		require.NoError(t, err)
		_, err = sys.BindExpression("/count", nil, func(any) {})
		require.NoError(t, err)
		_, err = sys.BindExpression("/count", nil, func(any) {})
		require.NoError(t, err)

		require.NoError(t, count.Set(2.0))
		assert.Equal(t, 1.0, sample(t, reg, "cdom_notifications_total", nil))
		assert.Equal(t, 2.0, sample(t, reg, "cdom_notified_subscribers_total", nil))
	})

	t.Run("suspension and loads", func(t *testing.T) {
		var got any
		_, err := sys.BindExpression("twice(21)", nil, func(v any) { got = v })
		require.NoError(t, err)
		assert.Equal(t, cdom.Pending, got)
		assert.Equal(t, 1.0, sample(t, reg, "cdom_suspensions_total", nil))

		close(slow)
		settle(t, sys)
		assert.Equal(t, 42.0, got)
		assert.Equal(t, 1.0, sample(t, reg, "cdom_helper_loads_total", map[string]string{"status": "ready"}))
		assert.Equal(t, 1.0, sample(t, reg, "cdom_helper_load_duration_seconds", nil))
	})

	t.Run("batches", func(t *testing.T) {
		sys.NotifyExternalChange()
		settle(t, sys)
		assert.Equal(t, 1.0, sample(t, reg, "cdom_batches_total", nil))
		assert.Equal(t, 1.0, sample(t, reg, "cdom_batch_subscribers", nil))
	})
}

func TestMetricsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := instrument.NewMetrics(
		instrument.WithRegistry(reg),
		instrument.WithNamespace("app"),
		instrument.WithSubsystem("ui"),
		instrument.WithConstLabels(prometheus.Labels{"tenant": "a"}),
	)
	m.Suspended("x")
	assert.Equal(t, 1.0, sample(t, reg, "app_ui_suspensions_total", map[string]string{"tenant": "a"}))
}

type recordedSpan struct {
	noop.Span
	name   string
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) { s.attrs = append(s.attrs, kv...) }
func (s *recordedSpan) SetStatus(code codes.Code, _ string)    { s.status = code }
func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}
func (s *recordedSpan) End(...trace.SpanEndOption) { s.ended = true }

func (s *recordedSpan) attr(key string) (attribute.Value, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

type recordingTracer struct {
	noop.Tracer
	spans []*recordedSpan
}

func (tr *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordedSpan{name: name, attrs: cfg.Attributes()}
	tr.spans = append(tr.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

type recordingProvider struct {
	noop.TracerProvider
	tracer *recordingTracer
}

func (p recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer { return p.tracer }

func TestTracingLoader(t *testing.T) {
	tracer := &recordingTracer{}
	boom := errors.New("boom")
	inner := cdom.LoaderFunc(func(ctx context.Context, name string) (*cdom.Helper, error) {
		switch name {
		case "found":
			return &cdom.Helper{Mutates: true, Fn: func(*cdom.Call, []any) (any, error) { return nil, nil }}, nil
		case "broken":
			return nil, boom
		}
		return nil, nil
	})
	l := instrument.NewTracingLoader(inner, instrument.WithTracerProvider(recordingProvider{tracer: tracer}))
	ctx := context.Background()

	h, err := l.Load(ctx, "found")
	require.NoError(t, err)
	require.NotNil(t, h)

	h, err = l.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, h)

	_, err = l.Load(ctx, "broken")
	assert.ErrorIs(t, err, boom)

	require.Len(t, tracer.spans, 3)
	for _, s := range tracer.spans {
		assert.True(t, s.ended, s.name)
	}

	found := tracer.spans[0]
	assert.Equal(t, "cdom.load found", found.name)
	assert.Equal(t, codes.Ok, found.status)
	v, ok := found.attr("cdom.helper")
	require.True(t, ok)
	assert.Equal(t, "found", v.AsString())
	v, _ = found.attr("cdom.helper_mutates")
	assert.True(t, v.AsBool())

	v, ok = tracer.spans[1].attr("cdom.helper_found")
	require.True(t, ok)
	assert.False(t, v.AsBool())

	broken := tracer.spans[2]
	assert.Equal(t, codes.Error, broken.status)
	assert.Equal(t, []error{boom}, broken.errs)
}

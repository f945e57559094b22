package tracing

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/keel/pkg/config"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func testTracingConfig() *config.TracingConfig {
	return &config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "keel-test",
	}
}

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if tracer.Enabled() {
		t.Error("Expected disabled tracer")
	}

	ctx, span := tracer.Start(context.Background(), "noop")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("Expected no trace ID from noop tracer")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, "test"); err == nil {
		t.Error("Expected error for nil config")
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	_, span := tracer.Start(context.Background(), "nil")
	span.End()
	if tracer.Enabled() {
		t.Error("Expected nil tracer to be disabled")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

func TestNewWithExporter_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(testTracingConfig(), "1.2.3", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() failed: %v", err)
	}

	ctx, span := tracer.Start(context.Background(), "gate.evaluate", VerdictAttrs("blocked", 1)...)
	if TraceID(ctx) == "" {
		t.Error("Expected a trace ID on the span context")
	}
	End(span, errors.New("blocked"))

	// Shutdown resets the in-memory exporter, so flush and read first.
	if err := tracer.provider.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() failed: %v", err)
	}
	spans := exporter.GetSpans()
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() failed: %v", err)
		}
	}()

	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "gate.evaluate" {
		t.Errorf("Expected span name gate.evaluate, got %q", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("Expected error status, got %v", spans[0].Status.Code)
	}

	found := false
	for _, kv := range spans[0].Attributes {
		if string(kv.Key) == AttrVerdict && kv.Value.AsString() == "blocked" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected %s attribute, got %v", AttrVerdict, spans[0].Attributes)
	}
}

func TestNewWithExporter_NeverSampler(t *testing.T) {
	cfg := testTracingConfig()
	cfg.Sampler = SamplerNever
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(cfg, "1.2.3", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() failed: %v", err)
	}

	_, span := tracer.Start(context.Background(), "dropped")
	End(span, nil)
	_ = tracer.Shutdown(context.Background())

	if got := len(exporter.GetSpans()); got != 0 {
		t.Errorf("Expected 0 exported spans, got %d", got)
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{"always", SamplerAlways, 0, false},
		{"never", SamplerNever, 0, false},
		{"ratio half", SamplerRatio, 0.5, false},
		{"ratio too high", SamplerRatio, 1.5, true},
		{"ratio negative", SamplerRatio, -0.1, true},
		{"unknown", "sometimes", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("createSampler() failed: %v", err)
			}
			if sampler == nil {
				t.Error("Expected non-nil sampler")
			}
		})
	}
}

func TestCreateSampler_FollowsParent(t *testing.T) {
	sampler, err := createSampler(SamplerNever, 0)
	if err != nil {
		t.Fatalf("createSampler() failed: %v", err)
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
	})
	res := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "gate.evaluate",
	})
	if res.Decision != sdktrace.RecordAndSample {
		t.Errorf("Expected child of a sampled span to be sampled, got %v", res.Decision)
	}

	res = sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{2},
		Name:          "agent.task",
	})
	if res.Decision != sdktrace.Drop {
		t.Errorf("Expected root span to be dropped, got %v", res.Decision)
	}
}

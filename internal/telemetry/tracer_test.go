// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ManuGH/querygate/internal/config"
)

func TestNewProvider_DisabledInstallsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ServiceName: "test"})
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, span := Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, provider.Shutdown(ctx), "disabled provider ignores a cancelled context")
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "test", ExporterType: "zipkin"})
	require.EqualError(t, err, "unsupported exporter type: zipkin (supported: grpc, http)")
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		root string
	}{
		{rate: 1, root: "root:AlwaysOnSampler"},
		{rate: 3, root: "root:AlwaysOnSampler"},
		{rate: 0, root: "root:AlwaysOffSampler"},
		{rate: -1, root: "root:AlwaysOffSampler"},
		{rate: 0.5, root: "root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		desc := samplerFor(tt.rate).Description()
		assert.Contains(t, desc, "ParentBased", "rate %v", tt.rate)
		assert.Contains(t, desc, tt.root, "rate %v", tt.rate)
	}
}

func TestFromAppConfig(t *testing.T) {
	got := FromAppConfig(config.TelemetryConfig{
		Enabled:      true,
		Exporter:     "http",
		Endpoint:     "collector:4318",
		SamplingRate: 0.25,
	}, "1.2.3", "test")

	assert.Equal(t, Config{
		Enabled:        true,
		ServiceName:    "querygate",
		ServiceVersion: "1.2.3",
		Environment:    "test",
		ExporterType:   "http",
		Endpoint:       "collector:4318",
		SamplingRate:   0.25,
	}, got)
}

func TestStartEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, parent := StartSpan(context.Background(), "gateway.handle", GatewayAttributes("detail", "corporate_tickets", 0)...)
	_, child := StartSpan(ctx, "guard.validate")
	EndSpan(child, errors.New("malformed"), "guard_rejected")
	EndSpan(parent, nil, "")

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "guard.validate", spans[0].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.NotEmpty(t, spans[0].Events(), "error recorded as an event")
	assert.NotEqual(t, codes.Error, spans[1].Status().Code)
}

func TestProvider_ConcurrentShutdown(t *testing.T) {
	provider := &Provider{}
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, provider.Shutdown(context.Background()))
		}()
	}
	wg.Wait()
}

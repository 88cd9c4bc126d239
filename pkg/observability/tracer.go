// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider along with the optional
// in-memory debug exporter used to back the inspection endpoints.
type Tracer struct {
	provider      *sdktrace.TracerProvider
	tracer        trace.Tracer
	debugExporter *DebugExporter
	capturePayloads bool
}

// TracerOption configures a Tracer at construction time.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// WithDebugExporter attaches an in-memory span exporter alongside the
// primary OTLP exporter, so spans stay on disk-free in-process storage
// for the debug/inspection endpoints.
func WithDebugExporter(e *DebugExporter) TracerOption {
	return func(o *tracerOptions) {
		o.debugExporter = e
	}
}

// WithCapturePayloads controls whether full LLM request/response bodies
// are recorded as span attributes.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(o *tracerOptions) {
		o.capturePayloads = enabled
	}
}

// NewTracer builds a Tracer from a TracingConfig, wiring an OTLP-gRPC
// exporter (and, optionally, the in-memory debug exporter) into a
// batching TracerProvider.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	o := &tracerOptions{}
	for _, opt := range opts {
		opt(o)
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if cfg.IsInsecure() {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if o.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.debugExporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Tracer{
		provider:        tp,
		tracer:          tp.Tracer(cfg.ServiceName),
		debugExporter:   o.debugExporter,
		capturePayloads: o.capturePayloads,
	}, nil
}

// Start begins a new span under the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// CapturePayloads reports whether full request/response bodies should be
// attached to spans.
func (t *Tracer) CapturePayloads() bool {
	return t != nil && t.capturePayloads
}

// DebugExporter returns the in-memory span exporter, or nil if one was
// not configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// GetTracer returns a Tracer from the globally installed TracerProvider,
// for call sites that do not hold a reference to the Manager.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

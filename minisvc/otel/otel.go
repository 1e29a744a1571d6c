// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package minisvcotel provides OpenTelemetry instrumentation for minisvc
// servers and clients. It implements [minisvc.DispatchHook] and
// [minisvc.ClientHook] to add distributed tracing and metrics.
//
// Usage:
//
//	server := minisvc.NewHttpServer(svc)
//	minisvcotel.InstrumentServer(server, minisvcotel.DefaultConfig())
//
//	client := minisvc.NewClient(opts)
//	minisvcotel.InstrumentClient(client, minisvcotel.DefaultConfig())
package minisvcotel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Query-farm/minisvc/minisvc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "minisvc"

// OtelConfig configures OpenTelemetry instrumentation.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator injects and extracts trace context through HTTP headers.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed calls.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with sensible defaults.
// TracerProvider, MeterProvider, and Propagator are resolved from the
// global OTel SDK at instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

func (cfg OtelConfig) resolve() OtelConfig {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	return cfg
}

// instruments holds the metric instruments shared by both hooks.
type instruments struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	reconcile metric.Int64Counter
}

func newInstruments(cfg OtelConfig, side string) instruments {
	var ins instruments
	if !cfg.EnableMetrics {
		return ins
	}
	meter := cfg.MeterProvider.Meter(instrumentationName)
	ins.requests, _ = meter.Int64Counter("minisvc."+side+".requests",
		metric.WithUnit("{request}"),
		metric.WithDescription("Number of API calls"),
	)
	ins.duration, _ = meter.Float64Histogram("minisvc."+side+".duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of API calls"),
	)
	if side == "client" {
		ins.reconcile, _ = meter.Int64Counter("minisvc.client.reconciliations",
			metric.WithUnit("{rebind}"),
			metric.WithDescription("Number of rebinds caused by remote API drift"),
		)
	}
	return ins
}

// spanToken is the HookToken returned by the start callbacks.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// InstrumentServer attaches OpenTelemetry instrumentation to an HTTP server.
// The hook is installed via [minisvc.HttpServer.SetDispatchHook].
func InstrumentServer(server *minisvc.HttpServer, cfg OtelConfig) {
	cfg = cfg.resolve()
	server.SetDispatchHook(&serverHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
		ins:    newInstruments(cfg, "server"),
	})
}

// InstrumentClient attaches OpenTelemetry instrumentation to a client.
// Trace context is injected into the headers of every request.
func InstrumentClient(client *minisvc.Client, cfg OtelConfig) {
	cfg = cfg.resolve()
	client.SetHook(&clientHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
		ins:    newInstruments(cfg, "client"),
	})
}

// serverHook implements minisvc.DispatchHook.
type serverHook struct {
	cfg    OtelConfig
	tracer trace.Tracer
	ins    instruments
}

// OnDispatchStart extracts parent trace context and starts a server span.
func (h *serverHook) OnDispatchStart(ctx context.Context, info minisvc.DispatchInfo) (context.Context, minisvc.HookToken) {
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.TransportMetadata))
	}
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "minisvc"),
		attribute.String("rpc.service", info.Service),
		attribute.String("rpc.method", info.Group+"/"+info.ID),
		attribute.String("minisvc.request_id", info.RequestID),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)
	if v := info.TransportMetadata["remote_addr"]; v != "" {
		attrs = append(attrs, attribute.String("net.peer.ip", v))
	}
	if v := info.TransportMetadata["user_agent"]; v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}

	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("minisvc/%s/%s", info.Group, info.ID),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnDispatchEnd records metrics and ends the span.
func (h *serverHook) OnDispatchEnd(ctx context.Context, token minisvc.HookToken, info minisvc.DispatchInfo, stats *minisvc.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	h.ins.record(ctx, st, info.Service, info.Group, info.ID, err)

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("minisvc.input_bytes", stats.InputBytes),
				attribute.Int64("minisvc.output_bytes", stats.OutputBytes),
			)
		}
		finishSpan(st.span, err, h.cfg.RecordExceptions)
	}
}

// clientHook implements minisvc.ClientHook.
type clientHook struct {
	cfg    OtelConfig
	tracer trace.Tracer
	ins    instruments
}

// OnCallStart starts a client span and injects its context into header.
func (h *clientHook) OnCallStart(ctx context.Context, info minisvc.CallInfo, header map[string]string) (context.Context, minisvc.HookToken) {
	st := &spanToken{startTime: time.Now()}
	if h.cfg.EnableTracing {
		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "minisvc"),
			attribute.String("rpc.service", info.Service),
			attribute.String("rpc.method", info.Group+"/"+info.ID),
			attribute.String("http.request.method", info.Method),
			attribute.String("url.full", info.URL),
			attribute.String("minisvc.request_id", info.RequestID),
		}
		attrs = append(attrs, h.cfg.CustomAttributes...)
		ctx, st.span = h.tracer.Start(ctx, fmt.Sprintf("minisvc/%s/%s", info.Group, info.ID),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...),
		)
	}
	if h.cfg.Propagator != nil {
		h.cfg.Propagator.Inject(ctx, propagation.MapCarrier(header))
	}
	return ctx, st
}

// OnCallEnd records metrics and ends the span.
func (h *clientHook) OnCallEnd(ctx context.Context, token minisvc.HookToken, info minisvc.CallInfo, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	h.ins.record(ctx, st, info.Service, info.Group, info.ID, err)
	if st.span != nil && st.span.IsRecording() {
		finishSpan(st.span, err, h.cfg.RecordExceptions)
	}
}

// OnReconcile counts rebinds and marks the active span.
func (h *clientHook) OnReconcile(ctx context.Context, from, to minisvc.Fingerprint) {
	attrs := []attribute.KeyValue{
		attribute.String("minisvc.fingerprint.from", string(from)),
		attribute.String("minisvc.fingerprint.to", string(to)),
	}
	if h.ins.reconcile != nil {
		h.ins.reconcile.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	trace.SpanFromContext(ctx).AddEvent("minisvc.reconcile", trace.WithAttributes(attrs...))
}

func (ins instruments) record(ctx context.Context, st *spanToken, service, group, id string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.system", "minisvc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", group+"/"+id),
		attribute.String("status", status),
	)
	if ins.requests != nil {
		ins.requests.Add(ctx, 1, attrs)
	}
	if ins.duration != nil {
		ins.duration.Record(ctx, time.Since(st.startTime).Seconds(), attrs)
	}
}

func finishSpan(span trace.Span, err error, recordExceptions bool) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if recordExceptions {
			span.RecordError(err)
		}
		span.SetAttributes(attribute.String("minisvc.error_type", errorType(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// errorType names the minisvc error category of err.
func errorType(err error) string {
	switch {
	case errors.Is(err, minisvc.ErrValidation):
		return "ValidationError"
	case errors.Is(err, minisvc.ErrTransport):
		return "TransportError"
	case errors.Is(err, minisvc.ErrProtocol):
		return "ProtocolError"
	case errors.Is(err, minisvc.ErrRemoteInvocation):
		return "RemoteInvocationError"
	case errors.Is(err, minisvc.ErrStaleBinding):
		return "StaleBindingError"
	}
	return fmt.Sprintf("%T", err)
}

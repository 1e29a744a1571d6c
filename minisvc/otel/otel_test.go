// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvcotel_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Query-farm/minisvc/minisvc"
	minisvcotel "github.com/Query-farm/minisvc/minisvc/otel"
)

type telemetry struct {
	spans   *tracetest.SpanRecorder
	metrics *sdkmetric.ManualReader
	cfg     minisvcotel.OtelConfig
}

func newTelemetry() *telemetry {
	spans := tracetest.NewSpanRecorder()
	metrics := sdkmetric.NewManualReader()
	cfg := minisvcotel.DefaultConfig()
	cfg.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	cfg.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(metrics))
	cfg.Propagator = propagation.TraceContext{}
	return &telemetry{spans: spans, metrics: metrics, cfg: cfg}
}

func (tel *telemetry) spanNamed(t *testing.T, name string, kind trace.SpanKind) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range tel.spans.Ended() {
		if s.Name() == name && s.SpanKind() == kind {
			return s
		}
	}
	t.Fatalf("no %s span named %s", kind, name)
	return nil
}

// sum returns the total of an Int64 sum instrument across attribute sets.
func (tel *telemetry) sum(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tel.metrics.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is %T", name, m.Data)
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func register(t *testing.T, version string, apis minisvc.APIs) *minisvc.Service {
	t.Helper()
	svc, err := minisvc.Register(context.Background(), minisvc.ServiceOptions{
		Name:    "svc",
		Version: version,
		Init:    func(context.Context, minisvc.GroupConfig) (any, error) { return apis, nil },
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return svc
}

func ping(v string) *minisvc.Operation {
	return &minisvc.Operation{Fn: func(context.Context, ...any) (any, error) { return v, nil }}
}

func serve(t *testing.T, tel *telemetry, svc *minisvc.Service) (*minisvc.HttpServer, *minisvc.Client) {
	t.Helper()
	server := minisvc.NewHttpServer(svc)
	minisvcotel.InstrumentServer(server, tel.cfg)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	client := minisvc.NewClient(minisvc.ClientOptions{Remote: srv.URL, Logger: slog.New(slog.DiscardHandler)})
	minisvcotel.InstrumentClient(client, tel.cfg)
	require.NoError(t, client.Init(context.Background()))
	return server, client
}

func TestTracePropagatesToServer(t *testing.T) {
	tel := newTelemetry()
	_, client := serve(t, tel, register(t, "1.0.0", minisvc.APIs{"ping": ping("pong")}))

	_, err := client.Call(context.Background(), "svc", "ping")
	require.NoError(t, err)

	clientSpan := tel.spanNamed(t, "minisvc/svc/ping", trace.SpanKindClient)
	serverSpan := tel.spanNamed(t, "minisvc/svc/ping", trace.SpanKindServer)
	assert.Equal(t, clientSpan.SpanContext().TraceID(), serverSpan.SpanContext().TraceID())
	assert.Equal(t, clientSpan.SpanContext().SpanID(), serverSpan.Parent().SpanID())
	assert.Equal(t, codes.Ok, serverSpan.Status().Code)

	assert.Equal(t, int64(1), tel.sum(t, "minisvc.server.requests"))
	assert.Equal(t, int64(1), tel.sum(t, "minisvc.client.requests"))
}

func TestFailedCallMarksSpans(t *testing.T) {
	tel := newTelemetry()
	_, client := serve(t, tel, register(t, "1.0.0", minisvc.APIs{
		"deny": {Fn: func(context.Context, ...any) (any, error) {
			return nil, minisvc.NewStatusError(403, "denied")
		}},
	}))

	_, err := client.Call(context.Background(), "svc", "deny")
	require.ErrorIs(t, err, minisvc.ErrRemoteInvocation)

	clientSpan := tel.spanNamed(t, "minisvc/svc/deny", trace.SpanKindClient)
	assert.Equal(t, codes.Error, clientSpan.Status().Code)
	assert.Contains(t, clientSpan.Attributes(), attribute.String("minisvc.error_type", "RemoteInvocationError"))

	serverSpan := tel.spanNamed(t, "minisvc/svc/deny", trace.SpanKindServer)
	assert.Equal(t, codes.Error, serverSpan.Status().Code)
	require.NotEmpty(t, serverSpan.Events())
	assert.Equal(t, "exception", serverSpan.Events()[0].Name)
}

func TestReconcileIsCounted(t *testing.T) {
	tel := newTelemetry()
	server, client := serve(t, tel, register(t, "1.0.0", minisvc.APIs{"ping": ping("pong")}))
	server.Swap(register(t, "2.0.0", minisvc.APIs{"ping": ping("pong v2"), "extra": ping("x")}))

	got, err := client.Call(context.Background(), "svc", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong v2", got)
	assert.Equal(t, int64(1), tel.sum(t, "minisvc.client.reconciliations"))

	// The event lands on the span of the call that observed the change,
	// not on the replay.
	var events []string
	for _, s := range tel.spans.Ended() {
		if s.SpanKind() != trace.SpanKindClient {
			continue
		}
		for _, e := range s.Events() {
			events = append(events, e.Name)
		}
	}
	assert.Contains(t, events, "minisvc.reconcile")
}

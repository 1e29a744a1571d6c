// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Query-farm/minisvc/conformance"
	"github.com/Query-farm/minisvc/minisvc"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func registerConformance(t testing.TB, cfg conformance.Config) *minisvc.Service {
	t.Helper()
	svc, err := conformance.Register(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	return svc
}

// exposer is a running HTTP server exposing a service, counting the
// descriptor fetches it answers.
type exposer struct {
	*minisvc.HttpServer
	URL     string
	fetches atomic.Int64
}

func expose(t testing.TB, svc *minisvc.Service) *exposer {
	t.Helper()
	e := &exposer{HttpServer: minisvc.NewHttpServer(svc)}
	e.SetLogger(discardLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == minisvc.ExposedPath {
			e.fetches.Add(1)
		}
		e.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	e.URL = srv.URL
	return e
}

func connect(t testing.TB, remote string) *minisvc.Client {
	t.Helper()
	c, err := minisvc.Connect(context.Background(), minisvc.ClientOptions{
		Remote: remote,
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	return c
}

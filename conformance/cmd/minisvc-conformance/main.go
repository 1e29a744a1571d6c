// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Query-farm/minisvc/conformance"
	"github.com/Query-farm/minisvc/internal/config"
	"github.com/Query-farm/minisvc/minisvc"
	minisvcotel "github.com/Query-farm/minisvc/minisvc/otel"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		config.Exitf("%v", err)
	}
	version := flag.String("version", "1.0.0", "version of the exposed service")
	greetings := flag.String("greetings", "", "suffix appended to greetings")
	telemetry := flag.Bool("telemetry", false, "export traces and metrics to stderr")
	ephemeral := flag.Bool("ephemeral", false, "listen on a random local port and print it")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.Parse()

	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if *telemetry {
		shutdown, err := minisvcotel.SetupStdout(os.Stderr)
		if err != nil {
			config.Exitf("telemetry: %v", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	svc, err := conformance.Register(ctx, conformance.Config{Version: *version, Greetings: *greetings}, logger)
	if err != nil {
		config.Exitf("register: %v", err)
	}

	httpServer := minisvc.NewHttpServer(svc)
	httpServer.SetCompressionLevel(cfg.CompressionLevel)
	if *telemetry {
		minisvcotel.InstrumentServer(httpServer, minisvcotel.DefaultConfig())
	}

	addr := cfg.Addr
	if *ephemeral {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		config.Exitf("failed to listen: %v", err)
	}
	if *ephemeral {
		fmt.Printf("PORT:%d\n", listener.Addr().(*net.TCPAddr).Port)
		os.Stdout.Sync()
	}
	logger.Info("serving", "service", svc.Descriptor().Label(), "addr", listener.Addr().String(),
		"fingerprint", svc.Fingerprint())

	srv := &http.Server{Handler: httpServer, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		config.Exitf("http serve error: %v", err)
	}
}

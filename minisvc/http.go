// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Responses smaller than this are never compressed.
const minCompressSize = 256

// HttpServer exposes a [Service] over HTTP:
//
//	GET  /api/exposed      service descriptor (JSON or Arrow IPC)
//	GET  /api/{group}/{id} operation without parameters
//	POST /api/{group}/{id} operation with a named-argument JSON body
//	GET  /                 landing page
//	GET  /describe         HTML API reference
type HttpServer struct {
	service atomic.Pointer[Service]
	mux     *http.ServeMux
	logger  *slog.Logger
	hook    DispatchHook
	repoURL string

	compressionLevel int
	encoderOnce      sync.Once
	encoder          *zstd.Encoder
}

// NewHttpServer creates an HTTP server exposing service.
func NewHttpServer(service *Service) *HttpServer {
	h := &HttpServer{logger: service.logger}
	h.service.Store(service)
	h.mux = http.NewServeMux()
	h.mux.HandleFunc("GET "+ExposedPath, h.handleExposed)
	h.mux.HandleFunc("GET /api/{group}/{id}", h.handleCall)
	h.mux.HandleFunc("POST /api/{group}/{id}", h.handleCall)
	h.mux.HandleFunc("GET /{$}", h.handleLandingPage)
	h.mux.HandleFunc("GET /describe", h.handleDescribePage)
	h.mux.HandleFunc("/", h.handleNotFound)
	return h
}

// SetDispatchHook registers a hook that is called around each dispatch.
func (h *HttpServer) SetDispatchHook(hook DispatchHook) {
	h.hook = hook
}

// SetLogger replaces the logger, which defaults to the service's.
func (h *HttpServer) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// SetRepoURL sets the source repository linked from the HTML pages.
func (h *HttpServer) SetRepoURL(url string) {
	h.repoURL = url
}

// SetCompressionLevel enables zstd compression of JSON responses for
// clients accepting it. Levels follow zstd (1 fastest to 22 best); zero
// disables compression. Must be called before serving.
func (h *HttpServer) SetCompressionLevel(level int) {
	h.compressionLevel = level
}

// Swap atomically replaces the exposed service, as a redeploy would.
// In-flight calls complete against the previous service.
func (h *HttpServer) Swap(service *Service) {
	h.service.Store(service)
	h.logger.Info("exposed service replaced", "service", service.Descriptor().Label(),
		"fingerprint", service.Fingerprint())
}

// Service returns the currently exposed service.
func (h *HttpServer) Service() *Service {
	return h.service.Load()
}

// ServeHTTP implements http.Handler.
func (h *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleExposed serves the descriptor of the current service.
func (h *HttpServer) handleExposed(w http.ResponseWriter, r *http.Request) {
	svc := h.service.Load()
	w.Header().Set(ChecksumHeader, string(svc.Fingerprint()))
	if prefersArrow(r.Header.Get("Accept")) {
		data, err := EncodeDescriptorArrow(svc.Descriptor())
		if err != nil {
			h.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", ArrowContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	data, err := json.Marshal(svc.Descriptor())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, data)
}

// handleCall dispatches one operation call.
func (h *HttpServer) handleCall(w http.ResponseWriter, r *http.Request) {
	svc := h.service.Load()
	group, id := r.PathValue("group"), r.PathValue("id")
	w.Header().Set(ChecksumHeader, string(svc.Fingerprint()))

	op, ok := svc.lookupOp(group, id)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, fmt.Errorf("unknown API %s of group %s", id, group))
		return
	}

	info := DispatchInfo{
		Service:           svc.Name(),
		Group:             group,
		ID:                id,
		RequestID:         r.Header.Get(RequestIDHeader),
		TransportMetadata: transportMetadata(r),
	}
	stats := &CallStatistics{}
	ctx := r.Context()
	var callErr error
	if h.hook != nil {
		var token HookToken
		ctx, token = safeDispatchStart(ctx, h.hook, info, h.logger)
		defer func() { safeDispatchEnd(ctx, h.hook, token, info, stats, callErr, h.logger) }()
	}

	if op.desc.HasStreamInput {
		// Stream operations may answer while still reading their input.
		_ = http.NewResponseController(w).EnableFullDuplex()
	}
	args, err := decodeArgs(r, op.desc, stats)
	if err != nil {
		callErr = err
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := op.call(ctx, args...)
	if err != nil {
		callErr = err
		h.logger.Debug("API failed", "api", id, "group", group, "request_id", info.RequestID, "err", err)
		h.writeError(w, r, statusOf(err), err)
		return
	}
	callErr = h.writeResult(w, r, result, stats)
}

// decodeArgs rebuilds positional arguments from the request according to
// the operation's calling convention.
func decodeArgs(r *http.Request, api APIDescriptor, stats *CallStatistics) ([]any, error) {
	switch {
	case api.HasBufferInput:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		stats.InputBytes = int64(len(data))
		return []any{data}, nil
	case api.HasStreamInput:
		return []any{&countingReader{r: r.Body, n: &stats.InputBytes}}, nil
	case len(api.Params) == 0:
		return nil, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	stats.InputBytes = int64(len(data))
	obj := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, &ValidationError{ID: api.ID, Message: "arguments must be a JSON object"}
		}
	}
	return positionalArgs(obj, api.Params), nil
}

// writeResult encodes an operation result.
func (h *HttpServer) writeResult(w http.ResponseWriter, r *http.Request, result any, stats *CallStatistics) error {
	switch v := result.(type) {
	case nil:
		w.WriteHeader(http.StatusNoContent)
		return nil
	case []byte:
		w.Header().Set("Content-Type", OctetContentType)
		w.WriteHeader(http.StatusOK)
		n, err := w.Write(v)
		stats.OutputBytes = int64(n)
		return err
	case io.Reader:
		if c, ok := v.(io.Closer); ok {
			defer c.Close()
		}
		w.Header().Set("Content-Type", StreamContentType)
		w.WriteHeader(http.StatusOK)
		n, err := io.Copy(flushWriter{w}, v)
		stats.OutputBytes = n
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return err
	}
	stats.OutputBytes = int64(len(data))
	h.writeJSON(w, r, http.StatusOK, data)
	return nil
}

// writeError sends a structured {message, statusCode, ...} error body.
func (h *HttpServer) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := map[string]any{
		"message":    err.Error(),
		"statusCode": status,
	}
	var verr *ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		body["fields"] = verr.Fields
	}
	data, mErr := json.Marshal(body)
	if mErr != nil {
		http.Error(w, err.Error(), status)
		return
	}
	h.writeJSON(w, r, status, data)
}

// writeJSON writes a JSON body, compressed when enabled and accepted.
func (h *HttpServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, data []byte) {
	w.Header().Set("Content-Type", JSONContentType)
	if h.compressionLevel > 0 && len(data) >= minCompressSize && acceptsZstd(r) {
		if enc := h.zstdEncoder(); enc != nil {
			data = enc.EncodeAll(data, make([]byte, 0, len(data)/2))
			w.Header().Set("Content-Encoding", "zstd")
			w.Header().Add("Vary", "Accept-Encoding")
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *HttpServer) zstdEncoder() *zstd.Encoder {
	h.encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(h.compressionLevel)))
		if err != nil {
			h.logger.Error("zstd encoder unavailable", "err", err)
			return
		}
		h.encoder = enc
	})
	return h.encoder
}

// statusOf picks the HTTP status reported for a failed call.
func statusOf(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		if code := coded.StatusCode(); code >= 400 && code < 600 {
			return code
		}
	}
	return http.StatusInternalServerError
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(part, ";", 2)[0]) == "zstd" {
			return true
		}
	}
	return false
}

// prefersArrow reports whether the Accept header lists the Arrow IPC type
// ahead of JSON.
func prefersArrow(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		switch strings.TrimSpace(strings.SplitN(part, ";", 2)[0]) {
		case ArrowContentType:
			return true
		case JSONContentType, "*/*":
			return false
		}
	}
	return false
}

// transportMetadata exposes request headers and peer information to hooks.
func transportMetadata(r *http.Request) map[string]string {
	md := make(map[string]string, len(r.Header)+2)
	for k, vs := range r.Header {
		if len(vs) > 0 {
			md[strings.ToLower(k)] = vs[0]
		}
	}
	md["remote_addr"] = r.RemoteAddr
	md["user_agent"] = r.UserAgent()
	return md
}

type countingReader struct {
	r io.Reader
	n *int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	*c.n += int64(n)
	return n, err
}

// flushWriter flushes after every write so stream results reach the
// client as they are produced.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}

// ListenContext is a convenience used by binaries: it serves h on srv until
// ctx is canceled, then shuts the server down.
func (h *HttpServer) ListenContext(ctx context.Context, srv *http.Server) error {
	srv.Handler = h
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.WithoutCancel(ctx))
	}
}

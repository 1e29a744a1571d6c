// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultTimeout applies to every request when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// Request is one outgoing call handed to a [Transport].
type Request struct {
	Method string
	URL    string
	Header http.Header
	// JSON, when non-nil, is encoded as the request body.
	JSON any
	// Body is sent as is when JSON is nil.
	Body        io.Reader
	ContentType string
}

// Response is a decoded reply. Body holds the parsed payload: a JSON value,
// []byte for octet streams, an io.ReadCloser for chunked streams, a string
// for other text, or nil when empty.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       any
}

// Transport performs requests on behalf of a client. Implementations
// return *TransportError for failures that produced no response; non-success
// statuses are returned as responses.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the default [Transport], built on net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport applying timeout to every request.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// NewHTTPTransportWithClient returns a transport using a caller-provided client.
func NewHTTPTransportWithClient(client *http.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

// Do implements [Transport].
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	contentType := req.ContentType
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, &TransportError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("encode body: %w", err)}
		}
		body = bytes.NewReader(data)
		contentType = JSONContentType
	} else if req.Body != nil {
		body = req.Body
		if contentType == "" {
			contentType = OctetContentType
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept-Encoding", "zstd, gzip")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	reader, err := decodeContent(resp)
	if err != nil {
		resp.Body.Close()
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}
	if isStream(resp) {
		out.Body = reader
		return out, nil
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	if out.Body, err = parseBody(resp.Header, data); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("%s %s: malformed response body", req.Method, req.URL), Err: err}
	}
	return out, nil
}

// decodeContent unwraps zstd or gzip content encoding.
func decodeContent(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		rc := dec.IOReadCloser()
		return &layeredReadCloser{Reader: rc, closers: []io.Closer{rc, resp.Body}}, nil
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &layeredReadCloser{Reader: gz, closers: []io.Closer{gz, resp.Body}}, nil
	default:
		return resp.Body, nil
	}
}

type layeredReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (l *layeredReadCloser) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func mediaType(h http.Header) string {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// isStream reports whether the response must be handed over unread.
func isStream(resp *http.Response) bool {
	switch mediaType(resp.Header) {
	case JSONContentType, OctetContentType, ArrowContentType:
		return false
	case StreamContentType:
		return true
	}
	return slices.Contains(resp.TransferEncoding, "chunked") && resp.StatusCode < 300
}

// parseBody decodes a fully read body according to its content type.
func parseBody(h http.Header, data []byte) (any, error) {
	switch mediaType(h) {
	case JSONContentType:
		if len(data) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case OctetContentType, ArrowContentType:
		return data, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	return string(data), nil
}

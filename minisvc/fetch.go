// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// FetchDescriptor retrieves the descriptor exposed by the service at
// remoteURL and computes its fingerprint. It performs a single request.
func FetchDescriptor(ctx context.Context, t Transport, remoteURL string) (*ServiceDescriptor, Fingerprint, error) {
	url := strings.TrimRight(remoteURL, "/") + ExposedPath
	header := http.Header{}
	header.Set("Accept", JSONContentType+", "+ArrowContentType+";q=0.9")

	resp, err := t.Do(ctx, &Request{Method: http.MethodGet, URL: url, Header: header})
	if err != nil {
		return nil, "", err
	}
	if closer, ok := resp.Body.(interface{ Close() error }); ok {
		closer.Close()
		return nil, "", &ProtocolError{Message: fmt.Sprintf("GET %s: descriptor sent as a stream", url)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &TransportError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode}
	}

	desc, err := decodeDescriptor(resp.Body)
	if err != nil {
		return nil, "", &ProtocolError{Message: fmt.Sprintf("GET %s: invalid descriptor", url), Err: err}
	}
	if err := desc.Validate(); err != nil {
		return nil, "", &ProtocolError{Message: fmt.Sprintf("GET %s: invalid descriptor", url), Err: err}
	}
	return desc, desc.Fingerprint(), nil
}

// decodeDescriptor converts a parsed response body into a descriptor. JSON
// bodies arrive as generic values, Arrow IPC bodies as bytes.
func decodeDescriptor(body any) (*ServiceDescriptor, error) {
	switch b := body.(type) {
	case []byte:
		return DecodeDescriptorArrow(b)
	case map[string]any:
		if _, ok := b["apis"].([]any); !ok {
			return nil, fmt.Errorf("apis must be a list")
		}
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		var d ServiceDescriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return &d, nil
	case nil:
		return nil, fmt.Errorf("empty body")
	default:
		return nil, fmt.Errorf("unexpected body of type %T", body)
	}
}

// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// proxy builds the callable installed for a remote operation.
func (c *Client) proxy(gen *generation, api APIDescriptor) Callable {
	return func(ctx context.Context, args ...any) (any, error) {
		if gen.stale.Load() {
			return nil, gen.staleError(api.Group, api.ID)
		}
		return c.invoke(ctx, gen, api, args, true)
	}
}

// invoke performs one remote call and checks the response against the
// fingerprint of gen. When replay is set, a fingerprint mismatch triggers
// reconciliation followed by one replay of the call.
func (c *Client) invoke(ctx context.Context, gen *generation, api APIDescriptor, args []any, replay bool) (result any, err error) {
	req, err := c.buildRequest(api, args)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	info := CallInfo{
		Service:   gen.descriptor.Label(),
		Group:     api.Group,
		ID:        api.ID,
		Method:    req.Method,
		URL:       req.URL,
		RequestID: requestID,
	}
	if hook := c.currentHook(); hook != nil {
		carrier := map[string]string{}
		var token HookToken
		ctx, token = safeCallStart(ctx, hook, info, carrier, c.logger)
		for k, v := range carrier {
			req.Header.Set(k, v)
		}
		defer func() { safeCallEnd(ctx, hook, token, info, err, c.logger) }()
	}

	start := time.Now()
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	actual := Fingerprint(resp.Header.Get(ChecksumHeader))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		callErr := remoteError(req, resp)
		if _, structured := callErr.(*RemoteInvocationError); !structured || actual == "" || actual == gen.fingerprint {
			return nil, callErr
		}
		// The server rejected a call shaped for a surface it no longer exposes.
		return c.drift(ctx, gen, api, args, actual, replay, callErr)
	}

	if actual == "" {
		closeBody(resp.Body)
		return nil, &ProtocolError{Group: api.Group, ID: api.ID,
			Message: fmt.Sprintf("no fingerprint found for API %s of group %s", api.ID, api.Group)}
	}
	if actual != gen.fingerprint {
		closeBody(resp.Body)
		return c.drift(ctx, gen, api, args, actual, replay, nil)
	}
	c.logger.Debug("API invoked", "api", api.ID, "group", api.Group, "request_id", requestID,
		"duration", time.Since(start))
	return resp.Body, nil
}

// buildRequest encodes a call according to the operation's calling
// convention.
func (c *Client) buildRequest(api APIDescriptor, args []any) (*Request, error) {
	req := &Request{
		Method: api.Method(),
		URL:    c.remote + api.Path,
		Header: http.Header{},
	}
	req.Header.Set("Accept", JSONContentType+", */*;q=0.5")

	switch {
	case api.rawPayload():
		arg, err := rawArg(api.ID, api.HasBufferInput, args)
		if err != nil {
			return nil, err
		}
		if data, ok := arg.([]byte); ok {
			req.Body = bytes.NewReader(data)
			req.ContentType = OctetContentType
		} else {
			req.Body = arg.(io.Reader)
			req.ContentType = StreamContentType
		}
	case len(api.Params) > 0:
		req.JSON = namedArgs(args, api.Params)
	}
	return req, nil
}

// remoteError converts a non-success response into an error: a structured
// {message, ...} body becomes a *RemoteInvocationError, anything else a
// *TransportError.
func remoteError(req *Request, resp *Response) error {
	if body, ok := resp.Body.(map[string]any); ok {
		if msg, ok := body["message"].(string); ok {
			details := make(map[string]any, len(body))
			for k, v := range body {
				if k != "message" && k != "statusCode" {
					details[k] = v
				}
			}
			return &RemoteInvocationError{Message: msg, StatusCode: resp.StatusCode, Details: details}
		}
	}
	closeBody(resp.Body)
	return &TransportError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
}

func closeBody(body any) {
	if rc, ok := body.(io.Closer); ok {
		rc.Close()
	}
}

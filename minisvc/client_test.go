// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/minisvc/conformance"
	"github.com/Query-farm/minisvc/minisvc"
)

// readAll drains stream results so local and remote values compare equal.
func readAll(t *testing.T, v any) any {
	t.Helper()
	r, ok := v.(io.Reader)
	if !ok {
		return v
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestClientMatchesLocalCalls(t *testing.T) {
	svc := registerConformance(t, conformance.Config{Greetings: " and welcome"})
	e := expose(t, svc)
	client := connect(t, e.URL)
	ctx := context.Background()

	tests := []struct {
		name  string
		group string
		id    string
		args  func() []any
	}{
		{"greeting", conformance.ServiceName, "greeting", func() []any { return []any{"Ada"} }},
		{"undefined", conformance.ServiceName, "getUndefined", func() []any { return nil }},
		{"exotic", conformance.ServiceName, "withExoticParameters", func() []any {
			return []any{[]any{1, 2}, map[string]any{"c": map[string]any{"d": "deep"}}}
		}},
		{"exotic without options", conformance.ServiceName, "withExoticParameters", func() []any {
			return []any{[]int{7}}
		}},
		{"add", conformance.GroupMath, "add", func() []any { return []any{1, 2.5} }},
		{"midpoint struct args", conformance.GroupMath, "midpoint", func() []any {
			return []any{conformance.Point{X: 0, Y: 0}, conformance.Point{X: 4, Y: 2}}
		}},
		{"bounding box", conformance.GroupMath, "boundingBox", func() []any {
			return []any{conformance.Point{X: 1, Y: 1}, conformance.Point{X: 1, Y: 5}, "line"}
		}},
		{"reverse", conformance.GroupBinary, "reverse", func() []any { return []any{[]byte("hello")} }},
		{"upper", conformance.GroupBinary, "upper", func() []any { return []any{strings.NewReader("a\nb\n")} }},
		{"lines", conformance.GroupBinary, "lines", func() []any { return []any{3} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, err := svc.Call(ctx, tt.group, tt.id, tt.args()...)
			require.NoError(t, err)
			remote, err := client.Call(ctx, tt.group, tt.id, tt.args()...)
			require.NoError(t, err)
			assert.Equal(t, readAll(t, local), readAll(t, remote))
		})
	}
}

func TestClientErrorsMatchLocalCalls(t *testing.T) {
	svc := registerConformance(t, conformance.Config{})
	client := connect(t, expose(t, svc).URL)
	ctx := context.Background()

	tests := []struct {
		name   string
		group  string
		id     string
		args   []any
		status int
	}{
		{"custom status", conformance.ServiceName, "boomError", nil, 401},
		{"failure", conformance.ServiceName, "failing", nil, 500},
		{"panic", conformance.ServiceName, "panicking", nil, 500},
		{"business", conformance.GroupMath, "divide", []any{1, 0}, 422},
		{"validation", conformance.GroupMath, "add", []any{1}, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, localErr := svc.Call(ctx, tt.group, tt.id, tt.args...)
			require.Error(t, localErr)

			_, err := client.Call(ctx, tt.group, tt.id, tt.args...)
			var remote *minisvc.RemoteInvocationError
			require.True(t, errors.As(err, &remote), "got %T: %v", err, err)
			assert.Equal(t, tt.status, remote.StatusCode)
			assert.Equal(t, localErr.Error(), remote.Message)
		})
	}
}

func TestClientValidationDetails(t *testing.T) {
	client := connect(t, expose(t, registerConformance(t, conformance.Config{})).URL)

	_, err := client.Call(context.Background(), conformance.GroupMath, "add", "one", 2)
	var remote *minisvc.RemoteInvocationError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 400, remote.StatusCode)
	assert.Equal(t, []any{"a"}, remote.Details["fields"])
}

func TestClientBindingsLayout(t *testing.T) {
	svc := registerConformance(t, conformance.Config{Version: "1.2.0"})
	client := connect(t, expose(t, svc).URL)

	assert.Equal(t, "conformance@1.2.0", client.Version())
	assert.Equal(t, svc.Fingerprint(), client.Fingerprint())
	assert.Equal(t, svc.Descriptor(), client.Descriptor())

	assert.Equal(t, svc.Bindings().Root().IDs(), client.Root().IDs())
	assert.Equal(t, []string{conformance.GroupBinary, conformance.GroupMath}, client.Bindings().Groups())
	assert.Nil(t, client.Group(conformance.GroupDisabled))
	assert.Nil(t, client.Group(conformance.ServiceName))

	got, err := client.Root().Call(context.Background(), "greeting", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob !", got)

	got, err = client.Group(conformance.GroupMath).Call(context.Background(), "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
}

func TestClientCallerInterface(t *testing.T) {
	svc := registerConformance(t, conformance.Config{})
	client := connect(t, expose(t, svc).URL)

	for name, caller := range map[string]minisvc.Caller{"local": svc, "remote": client} {
		got, err := caller.Call(context.Background(), conformance.GroupMath, "add", 20, 22)
		require.NoError(t, err, name)
		assert.Equal(t, 42.0, got, name)
	}
}

func TestClientUnknownOperation(t *testing.T) {
	client := connect(t, expose(t, registerConformance(t, conformance.Config{})).URL)

	_, err := client.Call(context.Background(), conformance.GroupMath, "sqrt", 4)
	assert.ErrorIs(t, err, minisvc.ErrProtocol)
	_, err = client.Call(context.Background(), conformance.GroupDisabled, "anything")
	assert.ErrorIs(t, err, minisvc.ErrProtocol)
}

func TestClientRawArgumentTypes(t *testing.T) {
	client := connect(t, expose(t, registerConformance(t, conformance.Config{})).URL)
	ctx := context.Background()

	got, err := client.Call(ctx, conformance.GroupBinary, "reverse", "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("cba"), got)

	_, err = client.Call(ctx, conformance.GroupBinary, "reverse", 42)
	assert.ErrorIs(t, err, minisvc.ErrValidation)
	_, err = client.Call(ctx, conformance.GroupBinary, "upper")
	assert.ErrorIs(t, err, minisvc.ErrValidation)
	_, err = client.Call(ctx, conformance.GroupBinary, "upper", []byte("not a reader"))
	assert.ErrorIs(t, err, minisvc.ErrValidation)
}

func TestConnectFailures(t *testing.T) {
	_, err := minisvc.Connect(context.Background(), minisvc.ClientOptions{
		Remote: "http://127.0.0.1:1",
		Logger: discardLogger(),
	})
	assert.ErrorIs(t, err, minisvc.ErrTransport)

	e := expose(t, registerConformance(t, conformance.Config{}))
	_, err = minisvc.Connect(context.Background(), minisvc.ClientOptions{
		Remote: e.URL + "/nested",
		Logger: discardLogger(),
	})
	var terr *minisvc.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 404, terr.StatusCode)
}

func TestClientInitRebinds(t *testing.T) {
	e := expose(t, registerConformance(t, conformance.Config{Version: "1.0.0"}))
	client := connect(t, e.URL+"/")
	before, ok := client.Lookup(conformance.GroupMath, "add")
	require.True(t, ok)

	e.Swap(registerConformance(t, conformance.Config{Version: "1.1.0"}))
	require.NoError(t, client.Init(context.Background()))
	assert.Equal(t, "conformance@1.1.0", client.Version())

	// The API list is unchanged, so the fingerprint is too, but the old
	// callables belong to a deprecated binding.
	_, err := before(context.Background(), 1, 2)
	var stale *minisvc.StaleBindingError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "conformance@1.0.0", stale.Expected)

	got, err := client.Call(context.Background(), conformance.GroupMath, "add", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestClientSurplusArgumentsMatchLocalCalls(t *testing.T) {
	svc, err := minisvc.Register(context.Background(), minisvc.ServiceOptions{
		Name:    "arity",
		Version: "1.0.0",
		Init: func(context.Context, minisvc.GroupConfig) (any, error) {
			return minisvc.APIs{
				"count": {
					Params: []string{"x"},
					Fn:     func(_ context.Context, args ...any) (any, error) { return len(args), nil },
				},
				"greet": greetV1(),
			}, nil
		},
	}, discardLogger())
	require.NoError(t, err)
	client := connect(t, expose(t, svc).URL)
	ctx := context.Background()

	for _, args := range [][]any{nil, {1}, {1, 2, 3}} {
		local, err := svc.Call(ctx, "arity", "count", args...)
		require.NoError(t, err)
		remote, err := client.Call(ctx, "arity", "count", args...)
		require.NoError(t, err)
		assert.EqualValues(t, 1, local, "args %v", args)
		assert.EqualValues(t, 1, remote, "args %v", args)
	}

	_, localErr := svc.Call(ctx, "arity", "greet", "Ada", "extra")
	assert.ErrorIs(t, localErr, minisvc.ErrValidation)
	_, err = client.Call(ctx, "arity", "greet", "Ada", "extra")
	var remote *minisvc.RemoteInvocationError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 400, remote.StatusCode)
	assert.Equal(t, localErr.Error(), remote.Message)
}

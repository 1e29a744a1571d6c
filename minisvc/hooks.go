// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"context"
	"log/slog"
)

// DispatchHook provides observability callpoints around server dispatch.
// Implementations must be safe for concurrent use.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by a start callback and passed back
// to the matching end callback. Only meaningful to the hook that created it.
type HookToken interface{}

// DispatchInfo carries operation metadata passed to hooks.
type DispatchInfo struct {
	Service           string            // exposing service name
	Group             string            // operation group
	ID                string            // operation id
	RequestID         string            // X-Request-Id of the call, if any
	TransportMetadata map[string]string // HTTP headers and peer information
}

// CallStatistics holds per-call byte counters.
type CallStatistics struct {
	InputBytes  int64
	OutputBytes int64
}

// ClientHook observes remote calls made through a [Client].
// Implementations must be safe for concurrent use.
type ClientHook interface {
	// OnCallStart may add headers to propagate, such as trace context.
	OnCallStart(ctx context.Context, info CallInfo, header map[string]string) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, err error)
	// OnReconcile is called after the client rebinds to a new descriptor.
	OnReconcile(ctx context.Context, from, to Fingerprint)
}

// CallInfo describes one remote call.
type CallInfo struct {
	Service   string // remote service label, name@version
	Group     string
	ID        string
	Method    string
	URL       string
	RequestID string
}

// safeDispatchStart runs the start hook, recovering panics so a faulty hook
// never fails a call.
func safeDispatchStart(ctx context.Context, hook DispatchHook, info DispatchInfo, logger *slog.Logger) (outCtx context.Context, token HookToken) {
	outCtx = ctx
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch hook start panicked", "panic", r, "group", info.Group, "api", info.ID)
			outCtx, token = ctx, nil
		}
	}()
	return hook.OnDispatchStart(ctx, info)
}

func safeDispatchEnd(ctx context.Context, hook DispatchHook, token HookToken, info DispatchInfo, stats *CallStatistics, err error, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch hook end panicked", "panic", r, "group", info.Group, "api", info.ID)
		}
	}()
	hook.OnDispatchEnd(ctx, token, info, stats, err)
}

func safeCallStart(ctx context.Context, hook ClientHook, info CallInfo, header map[string]string, logger *slog.Logger) (outCtx context.Context, token HookToken) {
	outCtx = ctx
	defer func() {
		if r := recover(); r != nil {
			logger.Error("client hook start panicked", "panic", r, "group", info.Group, "api", info.ID)
			outCtx, token = ctx, nil
		}
	}()
	return hook.OnCallStart(ctx, info, header)
}

func safeCallEnd(ctx context.Context, hook ClientHook, token HookToken, info CallInfo, err error, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("client hook end panicked", "panic", r, "group", info.Group, "api", info.ID)
		}
	}()
	hook.OnCallEnd(ctx, token, info, err)
}

func safeReconcile(ctx context.Context, hook ClientHook, from, to Fingerprint, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("client hook reconcile panicked", "panic", r)
		}
	}()
	hook.OnReconcile(ctx, from, to)
}

// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"log/slog"
	"strings"
	"time"
)

// ClientOptions configures a [Client].
type ClientOptions struct {
	// Remote is the base URL of the exposing service, e.g. http://host:3000.
	Remote string
	// Timeout applies to every request. Defaults to [DefaultTimeout].
	Timeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Transport defaults to an [HTTPTransport] honoring Timeout.
	Transport Transport
	// Hook observes calls and reconciliations.
	Hook ClientHook
}

func (o ClientOptions) withDefaults() ClientOptions {
	o.Remote = strings.TrimRight(o.Remote, "/")
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Transport == nil {
		o.Transport = NewHTTPTransport(o.Timeout)
	}
	return o
}

// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package minisvc registers asynchronous operations grouped by feature
// area, exposes them over HTTP, and binds them in remote processes as if
// they were local.
//
// # Registration
//
// A service is declared with [ServiceOptions]: a name, a version and
// groups. Each group has an initializer returning [APIs], a map of
// operation id to [Operation]. [Register] runs the initializers in order
// and installs one wrapping [Callable] per operation. The wrapper
// validates arguments against optional [Rule]s (JSON Schema), passes
// arguments and results through the canonical JSON encoding so local calls
// behave like remote ones, and decorates failures with the operation id.
//
// Operations of the group named after the service are placed at the root
// of the [Bindings]; other groups get a nested [Namespace]:
//
//	svc, _ := minisvc.Register(ctx, opts, logger)
//	svc.Bindings().Root().Call(ctx, "greeting", "Ada")
//	svc.Bindings().Group("math").Call(ctx, "add", 1, 2)
//
// # HTTP exposure
//
// [HttpServer] serves a service with the following routes:
//
//	GET  /api/exposed       descriptor ({name, version, apis}) or Arrow IPC
//	GET  /api/{group}/{id}  call an operation without parameters
//	POST /api/{group}/{id}  call with a JSON object of named arguments
//
// Every per-operation response carries the X-Service-Checksum header, the
// fingerprint of the exposed API list. Failures are reported as a
// {message, statusCode} JSON body.
//
// # Remote binding
//
// [Connect] fetches the descriptor and builds one proxy per operation with
// the same group structure as the exposing side. Each response's
// fingerprint is compared with the one captured at bind time. On a
// mismatch the client fetches the new descriptor, rebinds, and replays the
// call once. Callables of the previous binding fail with
// [StaleBindingError] from then on, as do operations the new descriptor no
// longer exposes. Concurrent callers share a single rebind.
//
// # Errors
//
// Failures are typed: [ValidationError], [TransportError],
// [ProtocolError], [RemoteInvocationError] and [StaleBindingError]. Use
// errors.Is with the Err* sentinels or errors.As to inspect them.
package minisvc

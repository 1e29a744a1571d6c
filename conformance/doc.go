// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package conformance provides test fixtures for the minisvc protocol. It
// declares a service whose groups exercise every feature of registration
// and remote binding: operations placed at the root and in nested groups,
// argument validation, operations returning no value, errors carrying an
// HTTP status, unusual calling conventions, struct results normalized
// through the interchange encoding, and raw buffer and stream payloads.
//
// The entry point intended for external use is [Options], which returns
// the service declaration to pass to [minisvc.Register]. [Register] is a
// shortcut doing both.
package conformance

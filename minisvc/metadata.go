// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

// Well-known paths, headers and content types of the minisvc HTTP protocol.
const (
	ExposedPath = "/api/exposed"

	ChecksumHeader  = "X-Service-Checksum"
	RequestIDHeader = "X-Request-Id"

	JSONContentType   = "application/json"
	OctetContentType  = "application/octet-stream"
	StreamContentType = "application/vnd.minisvc.stream"
	ArrowContentType  = "application/vnd.apache.arrow.stream"
)

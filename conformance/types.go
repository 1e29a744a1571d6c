// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

// Status is a string-backed enum returned inside structured results.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusClosed  Status = "CLOSED"
)

// Point is a simple 2D point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox contains two nested Points and a label.
type BoundingBox struct {
	TopLeft     Point  `json:"top_left"`
	BottomRight Point  `json:"bottom_right"`
	Label       string `json:"label"`
	Status      Status `json:"status"`
	// Note is dropped from the wire when empty.
	Note *string `json:"note,omitempty"`
}

// pointFrom reads a Point from its interchange form, a map with x and y.
func pointFrom(v any) (Point, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Point{}, false
	}
	x, okX := m["x"].(float64)
	y, okY := m["y"].(float64)
	return Point{X: x, Y: y}, okX && okY
}

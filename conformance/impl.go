// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Query-farm/minisvc/minisvc"
)

// ServiceName is the name of the conformance service. Its own group is
// placed at the root of the bindings.
const ServiceName = "conformance"

// Group names.
const (
	GroupMath     = "math"
	GroupBinary   = "binary"
	GroupDisabled = "disabled"
)

// Config selects the variant of the conformance service.
type Config struct {
	Version string
	// Greetings is appended to every greeting.
	Greetings string
}

// Options returns the declaration of the conformance service.
func Options(cfg Config) minisvc.ServiceOptions {
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	return minisvc.ServiceOptions{
		Name:    ServiceName,
		Version: cfg.Version,
		Groups: []minisvc.Group{
			{Name: ServiceName, Init: initSample},
			{Name: GroupMath, Init: initMath},
			{Name: GroupBinary, Init: initBinary},
			{Name: GroupDisabled, Init: initDisabled},
		},
		GroupOptions: map[string]map[string]any{
			ServiceName: {"greetings": cfg.Greetings},
		},
	}
}

// Register registers the conformance service.
func Register(ctx context.Context, cfg Config, logger *slog.Logger) (*minisvc.Service, error) {
	return minisvc.Register(ctx, Options(cfg), logger)
}

// --- Sample group ---

func initSample(_ context.Context, cfg minisvc.GroupConfig) (any, error) {
	greetings, _ := cfg.Options["greetings"].(string)
	return minisvc.APIs{
		"greeting": {
			Params:   []string{"name"},
			Validate: []minisvc.Rule{minisvc.Required(minisvc.String)},
			Fn: func(_ context.Context, args ...any) (any, error) {
				return fmt.Sprintf("Hello %v%s !", args[0], greetings), nil
			},
		},
		"getUndefined": {
			Fn: func(context.Context, ...any) (any, error) { return nil, nil },
		},
		"boomError": {
			Fn: func(context.Context, ...any) (any, error) {
				return nil, minisvc.NewStatusError(401, "Custom authorization error")
			},
		},
		"failing": {
			Fn: func(context.Context, ...any) (any, error) {
				return nil, errors.New("something went wrong")
			},
		},
		"panicking": {
			Fn: func(context.Context, ...any) (any, error) { panic("unexpected state") },
		},
		"withExoticParameters": {
			Params: []string{"pair", "options"},
			Fn:     withExoticParameters,
		},
	}, nil
}

// withExoticParameters destructures a two-element list and an optional
// {c: {d}} object, returning [a, b, d].
func withExoticParameters(_ context.Context, args ...any) (any, error) {
	var a, b, d any
	if pair, ok := args[0].([]any); ok {
		if len(pair) > 0 {
			a = pair[0]
		}
		if len(pair) > 1 {
			b = pair[1]
		}
	}
	if opts, ok := args[1].(map[string]any); ok {
		if c, ok := opts["c"].(map[string]any); ok {
			d = c["d"]
		}
	}
	return []any{a, b, d}, nil
}

// --- Math group ---

func initMath(context.Context, minisvc.GroupConfig) (any, error) {
	num := minisvc.Required(minisvc.Number)
	point := minisvc.Required(map[string]any{
		"type":     "object",
		"required": []string{"x", "y"},
		"properties": map[string]any{
			"x": minisvc.Number,
			"y": minisvc.Number,
		},
	})
	return minisvc.APIs{
		"add": {
			Params:   []string{"a", "b"},
			Validate: []minisvc.Rule{num, num},
			Fn: func(_ context.Context, args ...any) (any, error) {
				return args[0].(float64) + args[1].(float64), nil
			},
		},
		"divide": {
			Params:   []string{"a", "b"},
			Validate: []minisvc.Rule{num, num},
			Fn: func(_ context.Context, args ...any) (any, error) {
				if args[1].(float64) == 0 {
					return nil, minisvc.NewStatusError(422, "division by zero")
				}
				return args[0].(float64) / args[1].(float64), nil
			},
		},
		"midpoint": {
			Params:   []string{"from", "to"},
			Validate: []minisvc.Rule{point, point},
			Fn: func(_ context.Context, args ...any) (any, error) {
				from, _ := pointFrom(args[0])
				to, _ := pointFrom(args[1])
				return Point{X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2}, nil
			},
		},
		"boundingBox": {
			Params:   []string{"from", "to", "label"},
			Validate: []minisvc.Rule{point, point, minisvc.Optional(minisvc.String)},
			Fn:       boundingBox,
		},
	}, nil
}

func boundingBox(_ context.Context, args ...any) (any, error) {
	from, _ := pointFrom(args[0])
	to, _ := pointFrom(args[1])
	box := BoundingBox{
		TopLeft:     Point{X: min(from.X, to.X), Y: max(from.Y, to.Y)},
		BottomRight: Point{X: max(from.X, to.X), Y: min(from.Y, to.Y)},
		Status:      StatusActive,
	}
	if label, ok := args[2].(string); ok {
		box.Label = label
	}
	if box.TopLeft.X == box.BottomRight.X || box.TopLeft.Y == box.BottomRight.Y {
		box.Status = StatusClosed
		note := "degenerate box"
		box.Note = &note
	}
	return box, nil
}

// --- Binary group ---

func initBinary(context.Context, minisvc.GroupConfig) (any, error) {
	return minisvc.APIs{
		"reverse": {
			Params:         []string{"data"},
			HasBufferInput: true,
			Fn: func(_ context.Context, args ...any) (any, error) {
				data := args[0].([]byte)
				out := make([]byte, len(data))
				for i, c := range data {
					out[len(data)-1-i] = c
				}
				return out, nil
			},
		},
		"upper": {
			Params:         []string{"input"},
			HasStreamInput: true,
			Fn:             upper,
		},
		"lines": {
			Params:   []string{"count"},
			Validate: []minisvc.Rule{minisvc.Required(minisvc.Integer)},
			Fn: func(_ context.Context, args ...any) (any, error) {
				var buf bytes.Buffer
				for i := range int(args[0].(float64)) {
					fmt.Fprintf(&buf, "line %d\n", i)
				}
				return io.NopCloser(&buf), nil
			},
		},
	}, nil
}

// upper streams its input back upper-cased, line by line.
func upper(_ context.Context, args ...any) (any, error) {
	in := args[0].(io.Reader)
	pr, pw := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if _, err := io.WriteString(pw, strings.ToUpper(scanner.Text())+"\n"); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(scanner.Err())
	}()
	return pr, nil
}

// --- Disabled group ---

// initDisabled returns something other than an API map: the group is
// skipped.
func initDisabled(context.Context, minisvc.GroupConfig) (any, error) {
	return "not an API map", nil
}

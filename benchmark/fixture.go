// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/Query-farm/minisvc/minisvc"
)

// ServiceName is the benchmark service. Its operations live at the root.
const ServiceName = "bench"

// Register registers the benchmark fixture service.
func Register(ctx context.Context, logger *slog.Logger) (*minisvc.Service, error) {
	return minisvc.Register(ctx, minisvc.ServiceOptions{
		Name:    ServiceName,
		Version: "1.0.0",
		Init:    initBench,
	}, logger)
}

func initBench(context.Context, minisvc.GroupConfig) (any, error) {
	return minisvc.APIs{
		"noop": {Fn: noop},
		"add": {
			Params:   []string{"a", "b"},
			Validate: []minisvc.Rule{minisvc.Required(minisvc.Number), minisvc.Required(minisvc.Number)},
			Fn:       add,
		},
		"greet":           {Params: []string{"name"}, Fn: greet},
		"roundtrip_types": {Params: []string{"color", "mapping", "tags"}, Fn: roundtripTypes},
		"generate":        {Params: []string{"count"}, Fn: generate},
	}, nil
}

// Handler implementations

func noop(context.Context, ...any) (any, error) {
	return nil, nil
}

func add(_ context.Context, args ...any) (any, error) {
	return args[0].(float64) + args[1].(float64), nil
}

func greet(_ context.Context, args ...any) (any, error) {
	return fmt.Sprintf("Hello, %v!", args[0]), nil
}

// roundtripTypes formats a color, a mapping and tags as
// "color:true:{'k': v, ...}:[t, ...]" with sorted keys and tags.
func roundtripTypes(_ context.Context, args ...any) (any, error) {
	color, _ := args[0].(string)
	mapping, _ := args[1].(map[string]any)
	tags, _ := args[2].([]any)

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mappingParts []string
	for _, k := range keys {
		mappingParts = append(mappingParts, fmt.Sprintf("'%s': %v", k, mapping[k]))
	}
	mappingStr := "{" + strings.Join(mappingParts, ", ") + "}"

	sortedTags := make([]float64, 0, len(tags))
	for _, t := range tags {
		if f, ok := t.(float64); ok {
			sortedTags = append(sortedTags, f)
		}
	}
	sort.Float64s(sortedTags)

	var tagParts []string
	for _, t := range sortedTags {
		tagParts = append(tagParts, fmt.Sprintf("%v", t))
	}
	tagsStr := "[" + strings.Join(tagParts, ", ") + "]"

	return fmt.Sprintf("%s:true:%s:%s", color, mappingStr, tagsStr), nil
}

// generate streams count lines "i,value" where value = i * 10.
func generate(_ context.Context, args ...any) (any, error) {
	count, _ := args[0].(float64)
	pr, pw := io.Pipe()
	go func() {
		for i := range int(count) {
			if _, err := fmt.Fprintf(pw, "%d,%d\n", i, i*10); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()
	return pr, nil
}

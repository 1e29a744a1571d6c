// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Normalize marshals v to the canonical JSON interchange representation and
// decodes it back, so local results look exactly like remote ones: numbers
// become float64, structs become map[string]any, nil pointers become nil.
// Raw payloads ([]byte and io.Reader) cross the network untouched and are
// returned as is.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return x, nil
	case io.Reader:
		return x, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	return out, nil
}

// normalizeArgs applies the canonical round trip to a positional argument list.
func normalizeArgs(args []any) ([]any, error) {
	if len(args) == 0 {
		return args, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("serialize arguments: %w", err)
	}
	var out []any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("deserialize arguments: %w", err)
	}
	return out, nil
}

// namedArgs maps positional args onto params. Missing and nil parameters
// are omitted; arguments beyond params are keyed arg<N>, nil included.
func namedArgs(args []any, params []string) map[string]any {
	obj := make(map[string]any, len(args))
	for i, arg := range args {
		switch {
		case i >= len(params):
			obj[extraArgName(i)] = arg
		case arg != nil:
			obj[params[i]] = arg
		}
	}
	return obj
}

func extraArgName(i int) string {
	return fmt.Sprintf("arg%d", i)
}

// positionalArgs is the inverse of namedArgs: one slot per param, nil when
// absent, followed by the consecutive arg<N> extras. Other keys are ignored.
func positionalArgs(obj map[string]any, params []string) []any {
	args := make([]any, len(params))
	for i, name := range params {
		args[i] = obj[name]
	}
	for i := len(params); ; i++ {
		v, ok := obj[extraArgName(i)]
		if !ok {
			return args
		}
		args = append(args, v)
	}
}

// fitArgs pads args with nils or truncates them to exactly n entries.
func fitArgs(args []any, n int) []any {
	if len(args) > n {
		return args[:n]
	}
	for len(args) < n {
		args = append(args, nil)
	}
	return args
}

// rawArg checks the single argument of a buffer or stream input operation
// and returns it as []byte or io.Reader.
func rawArg(id string, buffer bool, args []any) (any, error) {
	kind := "stream"
	if buffer {
		kind = "buffer"
	}
	if len(args) != 1 {
		return nil, &ValidationError{ID: id, Message: fmt.Sprintf("expects a single %s argument, got %d arguments", kind, len(args))}
	}
	switch v := args[0].(type) {
	case []byte:
		if buffer {
			return v, nil
		}
	case string:
		if buffer {
			return []byte(v), nil
		}
	case io.Reader:
		if !buffer {
			return v, nil
		}
	}
	return nil, &ValidationError{ID: id, Message: fmt.Sprintf("expects a %s argument, got %T", kind, args[0])}
}

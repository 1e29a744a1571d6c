// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Rule is the validation rule for one positional parameter: a JSON Schema
// fragment applied to the argument, and whether the argument must be present.
type Rule struct {
	Schema   map[string]any
	Required bool
}

// Required returns a rule that demands the argument and checks it against schema.
func Required(schema map[string]any) Rule {
	return Rule{Schema: schema, Required: true}
}

// Optional returns a rule that checks the argument against schema when present.
func Optional(schema map[string]any) Rule {
	return Rule{Schema: schema}
}

// Common argument schemas.
var (
	String  = map[string]any{"type": "string"}
	Number  = map[string]any{"type": "number"}
	Integer = map[string]any{"type": "integer"}
	Boolean = map[string]any{"type": "boolean"}
	Array   = map[string]any{"type": "array"}
	Object  = map[string]any{"type": "object"}
)

const schemaURL = "schema.json"

// quotedName extracts property names from jsonschema messages such as
// "missing properties: 'name'".
var quotedName = regexp.MustCompile(`'([^']+)'`)

// argSchema validates the named-argument object built from a call.
type argSchema struct {
	id     string
	params []string
	schema *jsonschema.Schema
}

// compileArgSchema builds the object schema for an operation: one property
// per parameter, unknown properties rejected.
func compileArgSchema(id string, params []string, rules []Rule) (*argSchema, error) {
	if len(rules) > len(params) {
		return nil, fmt.Errorf("API %s declares %d validation rules for %d parameters", id, len(rules), len(params))
	}
	properties := make(map[string]any, len(params))
	required := []string{}
	for i, name := range params {
		prop := map[string]any{}
		if i < len(rules) {
			if rules[i].Schema != nil {
				prop = rules[i].Schema
			}
			if rules[i].Required {
				required = append(required, name)
			}
		}
		properties[name] = prop
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("API %s: encode schema: %w", id, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("API %s: %w", id, err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("API %s: compile schema: %w", id, err)
	}
	return &argSchema{id: id, params: params, schema: sch}, nil
}

// validate checks positional args and returns a *ValidationError on failure.
func (s *argSchema) validate(args []any) error {
	named, err := Normalize(namedArgs(args, s.params))
	if err != nil {
		return &ValidationError{ID: s.id, Message: err.Error()}
	}
	err = s.schema.Validate(named)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{ID: s.id, Message: err.Error()}
	}
	fields, messages := collectViolations(verr)
	return &ValidationError{ID: s.id, Fields: fields, Message: strings.Join(messages, "; ")}
}

// collectViolations walks the leaf causes of a jsonschema error.
func collectViolations(root *jsonschema.ValidationError) (fields, messages []string) {
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; !ok && name != "" {
			seen[name] = struct{}{}
			fields = append(fields, name)
		}
	}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			messages = append(messages, e.Message)
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc != "" {
				add(strings.SplitN(loc, "/", 2)[0])
				return
			}
			for _, m := range quotedName.FindAllStringSubmatch(e.Message, -1) {
				add(m[1])
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(root)
	sort.Strings(fields)
	return fields, messages
}

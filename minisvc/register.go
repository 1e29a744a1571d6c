// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Func is the implementation of an operation. It receives positional
// arguments already passed through the canonical interchange encoding.
// Returning a nil result means the operation produced no value.
type Func func(ctx context.Context, args ...any) (any, error)

// Operation declares one API: its implementation, its parameter names (the
// calling convention) and optional validation rules aligned with Params.
type Operation struct {
	Params   []string
	Validate []Rule
	Fn       Func
	// HasBufferInput marks operations taking a single []byte body.
	HasBufferInput bool
	// HasStreamInput marks operations taking a single io.Reader body.
	HasStreamInput bool
}

// APIs is the mapping an initializer returns: operation id to declaration.
type APIs map[string]*Operation

// GroupConfig is passed to a group initializer.
type GroupConfig struct {
	// Logger is the registration logger.
	Logger *slog.Logger
	// Options holds the group's own options merged with per-group
	// configuration from [ServiceOptions.GroupOptions].
	Options map[string]any
}

// InitFunc initializes a group. Returning anything other than [APIs]
// (including nil) means the group contributes no operations.
type InitFunc func(ctx context.Context, cfg GroupConfig) (any, error)

// Group declares an API group.
type Group struct {
	Name     string
	Init     InitFunc
	Options  map[string]any
	Validate map[string][]Rule // per operation id, used when the operation has none
}

// ServiceOptions declares a service and its groups.
type ServiceOptions struct {
	Name    string
	Version string
	// Init, when set, takes precedence over Groups: it declares a single
	// group named after the service that receives Options.
	Init    InitFunc
	Options map[string]any
	// Groups are initialized in declaration order.
	Groups []Group
	// GroupOptions holds per-group configuration keyed by group name.
	GroupOptions map[string]map[string]any
}

// groups resolves the effective group list.
func (o ServiceOptions) groups() []Group {
	if o.Init != nil {
		return []Group{{Name: o.Name, Init: o.Init, Options: o.Options}}
	}
	return o.Groups
}

// registeredOp is an installed operation and the information needed to
// expose it.
type registeredOp struct {
	desc APIDescriptor
	call Callable
}

// Service is a locally registered API surface.
type Service struct {
	name        string
	version     string
	bindings    *Bindings
	ops         map[string]*registeredOp // keyed by group + "/" + id
	descriptor  *ServiceDescriptor
	fingerprint Fingerprint
	logger      *slog.Logger
}

// Register runs every group initializer in order and installs a wrapping
// callable for each returned operation. Later groups may rely on side
// effects of earlier ones.
func Register(ctx context.Context, opts ServiceOptions, logger *slog.Logger) (*Service, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("minisvc: service name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		name:       opts.Name,
		version:    opts.Version,
		bindings:   NewBindings(opts.Name),
		ops:        make(map[string]*registeredOp),
		descriptor: &ServiceDescriptor{Name: opts.Name, Version: opts.Version, APIs: []APIDescriptor{}},
		logger:     logger,
	}

	for _, g := range opts.groups() {
		if g.Name == "" || g.Init == nil {
			return nil, fmt.Errorf("minisvc: group requires a name and an init function")
		}
		options := make(map[string]any, len(g.Options))
		maps.Copy(options, g.Options)
		maps.Copy(options, opts.GroupOptions[g.Name])

		result, err := g.Init(ctx, GroupConfig{Logger: logger, Options: options})
		if err != nil {
			return nil, fmt.Errorf("minisvc: init group %s: %w", g.Name, err)
		}
		apis, ok := result.(APIs)
		if !ok {
			logger.Debug("group exposes no APIs", "group", g.Name, "type", fmt.Sprintf("%T", result))
			continue
		}
		// Declaration order inside a group is not meaningful; sort for a
		// stable descriptor and fingerprint.
		for _, id := range slices.Sorted(maps.Keys(apis)) {
			if err := s.install(g, id, apis[id]); err != nil {
				return nil, err
			}
			logger.Debug("API loaded", "api", id, "group", g.Name)
		}
	}
	s.fingerprint = s.descriptor.Fingerprint()
	return s, nil
}

func (s *Service) install(g Group, id string, op *Operation) error {
	if op == nil || op.Fn == nil {
		return fmt.Errorf("minisvc: API %s of group %s has no implementation", id, g.Name)
	}
	if op.HasBufferInput && op.HasStreamInput {
		return fmt.Errorf("minisvc: API %s of group %s cannot take both buffer and stream input", id, g.Name)
	}
	rules := op.Validate
	if rules == nil {
		rules = g.Validate[id]
	}
	var schema *argSchema
	if rules != nil {
		var err error
		if schema, err = compileArgSchema(id, op.Params, rules); err != nil {
			return fmt.Errorf("minisvc: group %s: %w", g.Name, err)
		}
	}

	desc := APIDescriptor{
		Group:          g.Name,
		ID:             id,
		Path:           apiPath(g.Name, id),
		Params:         append([]string{}, op.Params...),
		HasStreamInput: op.HasStreamInput,
		HasBufferInput: op.HasBufferInput,
	}
	call := wrapLocal(id, op, schema)

	key := g.Name + "/" + id
	if _, exists := s.ops[key]; exists {
		// Same group declared twice: the later declaration wins, as it
		// does in the bindings.
		for i, api := range s.descriptor.APIs {
			if api.Group == g.Name && api.ID == id {
				s.descriptor.APIs = append(s.descriptor.APIs[:i], s.descriptor.APIs[i+1:]...)
				break
			}
		}
	}
	s.ops[key] = &registeredOp{desc: desc, call: call}
	s.descriptor.APIs = append(s.descriptor.APIs, desc)
	Place(s.bindings, g.Name, s.name).Set(id, call)
	return nil
}

// wrapLocal builds the callable installed for a local operation: validate,
// normalize arguments, invoke, decorate failures, normalize the result.
func wrapLocal(id string, op *Operation, schema *argSchema) Callable {
	raw := op.HasBufferInput || op.HasStreamInput
	return func(ctx context.Context, args ...any) (result any, err error) {
		if schema != nil {
			if err := schema.validate(args); err != nil {
				return nil, err
			}
		}
		if raw {
			arg, err := rawArg(id, op.HasBufferInput, args)
			if err != nil {
				return nil, err
			}
			args = []any{arg}
		} else {
			normalized, err := normalizeArgs(args)
			if err != nil {
				return nil, &callError{id: id, err: err}
			}
			// The remote side only ever sees the declared parameters.
			args = fitArgs(normalized, len(op.Params))
		}
		defer func() {
			if rv := recover(); rv != nil {
				result, err = nil, &callError{id: id, err: fmt.Errorf("panic: %v", rv)}
			}
		}()
		out, err := op.Fn(ctx, args...)
		if err != nil {
			return nil, &callError{id: id, err: err}
		}
		if out == nil {
			return nil, nil
		}
		if out, err = Normalize(out); err != nil {
			return nil, &callError{id: id, err: err}
		}
		return out, nil
	}
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// Bindings returns the group-structured callables of the service.
func (s *Service) Bindings() *Bindings { return s.bindings }

// Descriptor returns the descriptor of the registered APIs. It must not be
// modified.
func (s *Service) Descriptor() *ServiceDescriptor { return s.descriptor }

// Fingerprint returns the checksum of the registered API list.
func (s *Service) Fingerprint() Fingerprint { return s.fingerprint }

// Call invokes a registered operation.
func (s *Service) Call(ctx context.Context, group, id string, args ...any) (any, error) {
	fn, ok := s.bindings.Lookup(group, id)
	if !ok {
		return nil, &ProtocolError{Group: group, ID: id,
			Message: fmt.Sprintf("unknown API %s of group %s", id, group)}
	}
	return fn(ctx, args...)
}

// lookupOp returns the registered operation for group and id.
func (s *Service) lookupOp(group, id string) (*registeredOp, bool) {
	op, ok := s.ops[group+"/"+id]
	return op, ok
}

// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"context"
	"sort"
	"sync"
)

// Callable is a bound operation, local or remote.
type Callable func(ctx context.Context, args ...any) (any, error)

// Caller is implemented by anything that can invoke an operation by group
// and id: a local [Service] or a remote [Client].
type Caller interface {
	Call(ctx context.Context, group, id string, args ...any) (any, error)
}

// Namespace maps operation ids to callables. It is safe for concurrent use.
type Namespace struct {
	name string
	mu   sync.RWMutex
	ops  map[string]Callable
}

func newNamespace(name string) *Namespace {
	return &Namespace{name: name, ops: make(map[string]Callable)}
}

// Name returns the group name of the namespace.
func (n *Namespace) Name() string { return n.name }

// Get returns the callable installed under id.
func (n *Namespace) Get(id string) (Callable, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	fn, ok := n.ops[id]
	return fn, ok
}

// Set installs fn under id, replacing any previous callable.
func (n *Namespace) Set(id string, fn Callable) {
	n.mu.Lock()
	n.ops[id] = fn
	n.mu.Unlock()
}

// IDs returns the sorted operation ids of the namespace.
func (n *Namespace) IDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.ops))
	for id := range n.ops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Call invokes the operation id with positional args.
func (n *Namespace) Call(ctx context.Context, id string, args ...any) (any, error) {
	fn, ok := n.Get(id)
	if !ok {
		return nil, &ProtocolError{Group: n.name, ID: id,
			Message: "unknown API " + id + " of group " + n.name}
	}
	return fn(ctx, args...)
}

// Bindings is the group-structured set of callables owned by a service or
// client. Operations of the owner's own group live at the root; every other
// group gets a nested namespace.
type Bindings struct {
	owner  string
	root   *Namespace
	mu     sync.Mutex
	groups map[string]*Namespace
}

// NewBindings returns empty bindings owned by the named service.
func NewBindings(owner string) *Bindings {
	return &Bindings{
		owner:  owner,
		root:   newNamespace(owner),
		groups: make(map[string]*Namespace),
	}
}

// Owner returns the owning service name.
func (b *Bindings) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}

// setOwner renames the owner, used when a client binds to a service whose
// name is only known after discovery.
func (b *Bindings) setOwner(owner string) {
	b.mu.Lock()
	b.owner = owner
	b.mu.Unlock()
}

// Root returns the root namespace.
func (b *Bindings) Root() *Namespace { return b.root }

// Group returns the nested namespace for name, or nil when the group has
// never been placed.
func (b *Bindings) Group(name string) *Namespace {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.groups[name]
}

// Groups returns the sorted names of the nested namespaces.
func (b *Bindings) Groups() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.groups))
	for name := range b.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves the callable for group and id.
func (b *Bindings) Lookup(group, id string) (Callable, bool) {
	return b.lookupFor(group, b.Owner(), id)
}

func (b *Bindings) lookupFor(group, owner, id string) (Callable, bool) {
	var ns *Namespace
	if group == owner {
		ns = b.root
	} else if ns = b.Group(group); ns == nil {
		return nil, false
	}
	return ns.Get(id)
}

// Place returns the namespace operations of group are installed into:
// the root when group is the owner's name, otherwise a nested namespace
// created on first use. Repeated calls return the same namespace.
func Place(b *Bindings, group, owner string) *Namespace {
	if group == owner {
		return b.root
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.groups[group]
	if !ok {
		ns = newNamespace(group)
		b.groups[group] = ns
	}
	return ns
}

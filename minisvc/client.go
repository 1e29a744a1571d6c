// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// generation is one binding of a client to a fetched descriptor. It is
// replaced wholesale when the remote surface changes; callables built from
// it fail once it is marked stale.
type generation struct {
	descriptor  *ServiceDescriptor
	fingerprint Fingerprint
	stale       atomic.Bool
}

func (g *generation) staleError(group, id string) error {
	return &StaleBindingError{Group: group, ID: id, Expected: g.descriptor.Label()}
}

// Client binds the operations exposed by a remote service. Callables are
// reachable through [Client.Root], [Client.Group] and [Client.Lookup], or
// invoked by name with [Client.Call].
type Client struct {
	remote    string
	transport Transport
	logger    *slog.Logger
	hook      ClientHook

	bindings *Bindings

	mu      sync.RWMutex
	current *generation

	rebindMu sync.Mutex
	flight   singleflight.Group
}

// NewClient returns an unbound client. Call [Client.Init] before invoking
// operations.
func NewClient(opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		remote:    opts.Remote,
		transport: opts.Transport,
		logger:    opts.Logger,
		hook:      opts.Hook,
		bindings:  NewBindings(""),
	}
}

// Connect creates a client and binds it to the remote descriptor.
func Connect(ctx context.Context, opts ClientOptions) (*Client, error) {
	c := NewClient(opts)
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// SetHook registers a hook called around each remote call. Calls already
// in flight keep the hook they started with.
func (c *Client) SetHook(hook ClientHook) {
	c.mu.Lock()
	c.hook = hook
	c.mu.Unlock()
}

func (c *Client) currentHook() ClientHook {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hook
}

// Init fetches the remote descriptor and installs one callable per exposed
// operation. Calling Init again rebinds from scratch; operations of the
// previous binding are deprecated.
func (c *Client) Init(ctx context.Context) error {
	c.rebindMu.Lock()
	defer c.rebindMu.Unlock()
	desc, fp, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	prev := c.generation()
	c.install(desc, fp)
	if prev != nil {
		c.deprecate(prev, desc)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context) (*ServiceDescriptor, Fingerprint, error) {
	c.logger.Info("fetch exposed APIs", "remote", c.remote)
	return FetchDescriptor(ctx, c.transport, c.remote)
}

// install makes desc the current generation, replacing the callables of
// every operation it exposes. The caller holds rebindMu.
func (c *Client) install(desc *ServiceDescriptor, fp Fingerprint) *generation {
	gen := &generation{descriptor: desc, fingerprint: fp}
	c.bindings.setOwner(desc.Name)
	for _, api := range desc.APIs {
		Place(c.bindings, api.Group, desc.Name).Set(api.ID, c.proxy(gen, api))
		c.logger.Debug("API loaded", "api", api.ID, "group", api.Group, "service", desc.Label())
	}
	c.mu.Lock()
	c.current = gen
	c.mu.Unlock()
	return gen
}

func (c *Client) generation() *generation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Call invokes the remote operation id of group.
func (c *Client) Call(ctx context.Context, group, id string, args ...any) (any, error) {
	fn, ok := c.Lookup(group, id)
	if !ok {
		return nil, &ProtocolError{Group: group, ID: id,
			Message: fmt.Sprintf("unknown API %s of group %s", id, group)}
	}
	return fn(ctx, args...)
}

// Lookup returns the callable bound for group and id.
func (c *Client) Lookup(group, id string) (Callable, bool) {
	return c.bindings.Lookup(group, id)
}

// Root returns the namespace of the remote service's own group.
func (c *Client) Root() *Namespace { return c.bindings.Root() }

// Group returns the namespace of a group, or nil when the remote service
// never exposed it.
func (c *Client) Group(name string) *Namespace { return c.bindings.Group(name) }

// Bindings returns the client's group-structured callables.
func (c *Client) Bindings() *Bindings { return c.bindings }

// Descriptor returns the descriptor of the current binding, nil before Init.
func (c *Client) Descriptor() *ServiceDescriptor {
	if g := c.generation(); g != nil {
		return g.descriptor
	}
	return nil
}

// Fingerprint returns the fingerprint of the current binding.
func (c *Client) Fingerprint() Fingerprint {
	if g := c.generation(); g != nil {
		return g.fingerprint
	}
	return ""
}

// Version returns "name@version" of the bound remote service.
func (c *Client) Version() string {
	if g := c.generation(); g != nil {
		return g.descriptor.Label()
	}
	return ""
}

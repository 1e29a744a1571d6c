// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// drift handles a response whose fingerprint differs from the one gen was
// built against. On a first observation the client is rebound and the call
// replayed once against the new binding; during a replay it is a protocol
// violation.
func (c *Client) drift(ctx context.Context, gen *generation, api APIDescriptor, args []any, actual Fingerprint, replay bool, cause error) (any, error) {
	if !replay {
		return nil, &ProtocolError{Group: api.Group, ID: api.ID,
			Message: fmt.Sprintf("remote surface changed again while replaying API %s of group %s (fingerprint %s)", api.ID, api.Group, actual),
			Err:     cause}
	}
	c.logger.Info("remote server change detected", "remote", c.remote,
		"expected", gen.fingerprint, "actual", actual, "api", api.ID, "group", api.Group)

	next, err := c.reconcile(ctx, gen)
	if err != nil {
		return nil, err
	}

	fresh, ok := next.descriptor.Find(api.Group, api.ID)
	if !ok {
		return nil, &ProtocolError{Group: api.Group, ID: api.ID,
			Message: fmt.Sprintf("API %s of group %s is not exposed any more by %s", api.ID, api.Group, next.descriptor.Label())}
	}
	if err := rewind(args); err != nil {
		return nil, &ProtocolError{Group: api.Group, ID: api.ID,
			Message: fmt.Sprintf("cannot replay API %s of group %s", api.ID, api.Group), Err: err}
	}

	result, err := c.invoke(ctx, next, fresh, args, false)
	var remote *RemoteInvocationError
	if errors.As(err, &remote) && remote.StatusCode >= 400 && remote.StatusCode < 500 {
		return nil, &ProtocolError{Group: api.Group, ID: api.ID,
			Message: fmt.Sprintf("API %s of group %s is not compatible with %s", api.ID, api.Group, next.descriptor.Label()),
			Err:     err}
	}
	return result, err
}

// reconcile rebinds the client and deprecates stale. Concurrent callers
// holding the same stale generation share a single descriptor fetch; a
// caller arriving after the rebind only receives the new generation.
func (c *Client) reconcile(ctx context.Context, stale *generation) (*generation, error) {
	v, err, _ := c.flight.Do(string(stale.fingerprint), func() (any, error) {
		c.rebindMu.Lock()
		defer c.rebindMu.Unlock()
		if cur := c.generation(); cur != stale {
			return cur, nil
		}
		desc, fp, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			// The old binding is invalid whether or not a new one can be built.
			c.deprecate(stale, nil)
			return nil, err
		}
		next := c.install(desc, fp)
		c.deprecate(stale, desc)
		if hook := c.currentHook(); hook != nil {
			safeReconcile(ctx, hook, stale.fingerprint, next.fingerprint, c.logger)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*generation), nil
}

// slot identifies a callable within the bindings.
type slot struct {
	ns *Namespace
	id string
}

// deprecate marks gen stale. Its operations whose slot next did not bind
// are replaced by a stub reporting the version the binding expected; the
// others were already rebound by install. Slots are compared by namespace
// rather than group name since a renamed service moves its root
// operations. A nil next stubs every operation. The caller holds rebindMu.
func (c *Client) deprecate(gen *generation, next *ServiceDescriptor) {
	if !gen.stale.CompareAndSwap(false, true) {
		return
	}
	live := map[slot]bool{}
	if next != nil {
		for _, api := range next.APIs {
			live[slot{Place(c.bindings, api.Group, next.Name), api.ID}] = true
		}
	}
	for _, api := range gen.descriptor.APIs {
		group, id := api.Group, api.ID
		ns := Place(c.bindings, group, gen.descriptor.Name)
		if live[slot{ns, id}] {
			continue
		}
		ns.Set(id, func(context.Context, ...any) (any, error) {
			return nil, gen.staleError(group, id)
		})
		c.logger.Debug("API deprecated", "api", id, "group", group)
	}
}

// rewind resets raw stream arguments so a call can be sent again.
func rewind(args []any) error {
	for _, arg := range args {
		r, ok := arg.(io.Reader)
		if !ok {
			continue
		}
		s, ok := r.(io.Seeker)
		if !ok {
			return fmt.Errorf("stream argument of type %T cannot be rewound", r)
		}
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}
	return nil
}

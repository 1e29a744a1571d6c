// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
)

// ServiceDescriptor lists the operations a service exposes. It is served
// on the discovery endpoint and replaced wholesale when the surface changes.
type ServiceDescriptor struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	APIs    []APIDescriptor `json:"apis"`
}

// APIDescriptor describes one exposed operation. Params is the calling
// convention: positional arguments map to these names, in order.
type APIDescriptor struct {
	Group          string   `json:"group"`
	ID             string   `json:"id"`
	Path           string   `json:"path"`
	Params         []string `json:"params"`
	HasStreamInput bool     `json:"hasStreamInput"`
	HasBufferInput bool     `json:"hasBufferInput"`
}

// Fingerprint is a deterministic checksum of a descriptor's API list.
type Fingerprint string

// rawPayload reports whether calls send their single argument as the body.
func (d APIDescriptor) rawPayload() bool {
	return d.HasBufferInput || d.HasStreamInput
}

// Method returns the HTTP method used to invoke the operation: GET when it
// takes no parameters, POST otherwise and for raw payloads.
func (d APIDescriptor) Method() string {
	if len(d.Params) == 0 && !d.rawPayload() {
		return "GET"
	}
	return "POST"
}

// Label returns the "name@version" label of the descriptor.
func (s *ServiceDescriptor) Label() string {
	return s.Name + "@" + s.Version
}

// Find returns the descriptor entry for group and id.
func (s *ServiceDescriptor) Find(group, id string) (APIDescriptor, bool) {
	for _, api := range s.APIs {
		if api.Group == group && api.ID == id {
			return api, true
		}
	}
	return APIDescriptor{}, false
}

// Validate checks the descriptor shape.
func (s *ServiceDescriptor) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("descriptor has no service name")
	}
	seen := make(map[string]struct{}, len(s.APIs))
	for i, api := range s.APIs {
		if api.Group == "" || api.ID == "" || api.Path == "" {
			return fmt.Errorf("api #%d: group, id and path are required", i)
		}
		key := api.Group + "\x00" + api.ID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("api %s of group %s declared twice", api.ID, api.Group)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ComputeFingerprint returns the checksum of apis. Two lists with the same
// entries in the same order always produce the same fingerprint.
func ComputeFingerprint(apis []APIDescriptor) Fingerprint {
	normalized := make([]APIDescriptor, len(apis))
	for i, api := range apis {
		if api.Params == nil {
			api.Params = []string{}
		}
		normalized[i] = api
	}
	// Marshal of a slice of plain structs cannot fail.
	data, _ := json.Marshal(normalized)
	return Fingerprint(strconv.FormatUint(xxhash.Sum64(data), 16))
}

// Fingerprint returns the checksum of the descriptor's API list.
func (s *ServiceDescriptor) Fingerprint() Fingerprint {
	return ComputeFingerprint(s.APIs)
}

func apiPath(group, id string) string {
	return "/api/" + group + "/" + id
}

// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAPIs() []APIDescriptor {
	return []APIDescriptor{
		{Group: "svc", ID: "greet", Path: "/api/svc/greet", Params: []string{"name"}},
		{Group: "math", ID: "add", Path: "/api/math/add", Params: []string{"a", "b"}},
		{Group: "math", ID: "pi", Path: "/api/math/pi", Params: []string{}},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	assert.Equal(t, ComputeFingerprint(sampleAPIs()), ComputeFingerprint(sampleAPIs()))
	assert.NotEmpty(t, ComputeFingerprint(sampleAPIs()))
	assert.NotEmpty(t, ComputeFingerprint(nil))
}

func TestFingerprintNilParamsAsEmpty(t *testing.T) {
	withNil := sampleAPIs()
	withNil[2].Params = nil
	assert.Equal(t, ComputeFingerprint(sampleAPIs()), ComputeFingerprint(withNil))
}

func TestFingerprintSensitivity(t *testing.T) {
	base := ComputeFingerprint(sampleAPIs())

	tests := []struct {
		name   string
		mutate func([]APIDescriptor) []APIDescriptor
	}{
		{"added param", func(a []APIDescriptor) []APIDescriptor {
			a[0].Params = append(a[0].Params, "punctuation")
			return a
		}},
		{"renamed param", func(a []APIDescriptor) []APIDescriptor {
			a[1].Params = []string{"x", "b"}
			return a
		}},
		{"renamed id", func(a []APIDescriptor) []APIDescriptor {
			a[0].ID = "hello"
			return a
		}},
		{"moved group", func(a []APIDescriptor) []APIDescriptor {
			a[2].Group = "svc"
			return a
		}},
		{"changed path", func(a []APIDescriptor) []APIDescriptor {
			a[2].Path = "/api/math/tau"
			return a
		}},
		{"buffer input", func(a []APIDescriptor) []APIDescriptor {
			a[0].HasBufferInput = true
			return a
		}},
		{"stream input", func(a []APIDescriptor) []APIDescriptor {
			a[0].HasStreamInput = true
			return a
		}},
		{"reordered", func(a []APIDescriptor) []APIDescriptor {
			a[1], a[2] = a[2], a[1]
			return a
		}},
		{"removed", func(a []APIDescriptor) []APIDescriptor {
			return a[:2]
		}},
		{"added", func(a []APIDescriptor) []APIDescriptor {
			return append(a, APIDescriptor{Group: "math", ID: "sub", Path: "/api/math/sub"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, ComputeFingerprint(tt.mutate(sampleAPIs())))
		})
	}
}

func TestFingerprintCoversOnlyAPIs(t *testing.T) {
	a := &ServiceDescriptor{Name: "svc", Version: "1.0.0", APIs: sampleAPIs()}
	b := &ServiceDescriptor{Name: "svc", Version: "2.0.0", APIs: sampleAPIs()}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestDescriptorValidate(t *testing.T) {
	valid := &ServiceDescriptor{Name: "svc", Version: "1.0.0", APIs: sampleAPIs()}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		desc *ServiceDescriptor
	}{
		{"no name", &ServiceDescriptor{APIs: sampleAPIs()}},
		{"no group", &ServiceDescriptor{Name: "svc", APIs: []APIDescriptor{{ID: "a", Path: "/api/x/a"}}}},
		{"no id", &ServiceDescriptor{Name: "svc", APIs: []APIDescriptor{{Group: "x", Path: "/api/x/a"}}}},
		{"no path", &ServiceDescriptor{Name: "svc", APIs: []APIDescriptor{{Group: "x", ID: "a"}}}},
		{"duplicate", &ServiceDescriptor{Name: "svc", APIs: append(sampleAPIs(), sampleAPIs()[0])}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.desc.Validate())
		})
	}
}

func TestDescriptorFindAndLabel(t *testing.T) {
	d := &ServiceDescriptor{Name: "svc", Version: "1.0.0", APIs: sampleAPIs()}
	assert.Equal(t, "svc@1.0.0", d.Label())

	api, ok := d.Find("math", "add")
	require.True(t, ok)
	assert.Equal(t, "/api/math/add", api.Path)

	_, ok = d.Find("svc", "add")
	assert.False(t, ok)
}

func TestAPIDescriptorMethod(t *testing.T) {
	assert.Equal(t, "GET", APIDescriptor{}.Method())
	assert.Equal(t, "POST", APIDescriptor{Params: []string{"a"}}.Method())
	assert.Equal(t, "POST", APIDescriptor{HasBufferInput: true}.Method())
	assert.Equal(t, "POST", APIDescriptor{HasStreamInput: true}.Method())
}

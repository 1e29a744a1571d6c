// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Descriptor schema: one row per exposed API.
var describeFields = []arrow.Field{
	{Name: "group", Type: arrow.BinaryTypes.String},
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "path", Type: arrow.BinaryTypes.String},
	{Name: "params", Type: arrow.ListOf(arrow.BinaryTypes.String)},
	{Name: "has_stream_input", Type: &arrow.BooleanType{}},
	{Name: "has_buffer_input", Type: &arrow.BooleanType{}},
}

// Describe metadata keys, stored on the schema.
const (
	MetaServiceName     = "minisvc.name"
	MetaServiceVersion  = "minisvc.version"
	MetaFingerprint     = "minisvc.fingerprint"
	MetaDescribeVersion = "minisvc.describe_version"
	DescribeVersion     = "1"
)

// EncodeDescriptorArrow serializes a descriptor as an Arrow IPC stream.
func EncodeDescriptorArrow(d *ServiceDescriptor) ([]byte, error) {
	mem := memory.NewGoAllocator()

	meta := arrow.NewMetadata(
		[]string{MetaServiceName, MetaServiceVersion, MetaFingerprint, MetaDescribeVersion},
		[]string{d.Name, d.Version, string(d.Fingerprint()), DescribeVersion},
	)
	schema := arrow.NewSchema(describeFields, &meta)

	groupBuilder := array.NewStringBuilder(mem)
	defer groupBuilder.Release()
	idBuilder := array.NewStringBuilder(mem)
	defer idBuilder.Release()
	pathBuilder := array.NewStringBuilder(mem)
	defer pathBuilder.Release()
	paramsBuilder := array.NewListBuilder(mem, arrow.BinaryTypes.String)
	defer paramsBuilder.Release()
	streamBuilder := array.NewBooleanBuilder(mem)
	defer streamBuilder.Release()
	bufferBuilder := array.NewBooleanBuilder(mem)
	defer bufferBuilder.Release()

	paramValues := paramsBuilder.ValueBuilder().(*array.StringBuilder)
	for _, api := range d.APIs {
		groupBuilder.Append(api.Group)
		idBuilder.Append(api.ID)
		pathBuilder.Append(api.Path)
		paramsBuilder.Append(true)
		for _, p := range api.Params {
			paramValues.Append(p)
		}
		streamBuilder.Append(api.HasStreamInput)
		bufferBuilder.Append(api.HasBufferInput)
	}

	cols := []arrow.Array{
		groupBuilder.NewArray(),
		idBuilder.NewArray(),
		pathBuilder.NewArray(),
		paramsBuilder.NewArray(),
		streamBuilder.NewArray(),
		bufferBuilder.NewArray(),
	}
	for _, c := range cols {
		defer c.Release()
	}

	batch := array.NewRecordBatch(schema, cols, int64(len(d.APIs)))
	defer batch.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := w.Write(batch); err != nil {
		return nil, fmt.Errorf("write descriptor batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close descriptor stream: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDescriptorArrow reads a descriptor written by [EncodeDescriptorArrow].
func DecodeDescriptorArrow(data []byte) (*ServiceDescriptor, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading descriptor IPC stream: %w", err)
	}
	defer reader.Release()

	schema := reader.Schema()
	if schema.NumFields() != len(describeFields) {
		return nil, fmt.Errorf("descriptor schema has %d fields, expected %d", schema.NumFields(), len(describeFields))
	}
	meta := schema.Metadata()
	name, _ := meta.GetValue(MetaServiceName)
	version, _ := meta.GetValue(MetaServiceVersion)
	d := &ServiceDescriptor{Name: name, Version: version, APIs: []APIDescriptor{}}

	for reader.Next() {
		batch := reader.RecordBatch()
		groups, ok1 := batch.Column(0).(*array.String)
		ids, ok2 := batch.Column(1).(*array.String)
		paths, ok3 := batch.Column(2).(*array.String)
		params, ok4 := batch.Column(3).(*array.List)
		streams, ok5 := batch.Column(4).(*array.Boolean)
		buffers, ok6 := batch.Column(5).(*array.Boolean)
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
			return nil, fmt.Errorf("descriptor batch has unexpected column types")
		}
		values, ok := params.ListValues().(*array.String)
		if !ok {
			return nil, fmt.Errorf("descriptor params are not strings")
		}
		for i := 0; i < int(batch.NumRows()); i++ {
			start, end := params.ValueOffsets(i)
			names := make([]string, 0, end-start)
			for j := start; j < end; j++ {
				names = append(names, values.Value(int(j)))
			}
			d.APIs = append(d.APIs, APIDescriptor{
				Group:          groups.Value(i),
				ID:             ids.Value(i),
				Path:           paths.Value(i),
				Params:         names,
				HasStreamInput: streams.Value(i),
				HasBufferInput: buffers.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading descriptor batch: %w", err)
	}
	return d, nil
}

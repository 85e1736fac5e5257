// Package table provides owned columnar tables, non-owning views into them,
// and the column-transport codec used to move tables across nodes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package table

import (
	"fmt"

	"github.com/apache/arrow/go/v8/arrow"
	"github.com/apache/arrow/go/v8/arrow/array"
	"github.com/apache/arrow/go/v8/arrow/memory"
)

// Column is a named slice of plain Go values: []int64, []int32, []float64, []string or []bool.
type Column struct {
	Values any
	Name   string
}

// Build makes a non-nullable table out of equal-length columns.
func Build(mem memory.Allocator, cols ...Column) (*Table, error) {
	var (
		fields = make([]arrow.Field, 0, len(cols))
		arrs   = make([]arrow.Array, 0, len(cols))
		nrows  = -1
	)
	defer func() {
		for _, arr := range arrs {
			arr.Release()
		}
	}()
	for _, col := range cols {
		arr, err := buildArray(mem, col.Values)
		if err != nil {
			return nil, fmt.Errorf("column %q: %v", col.Name, err)
		}
		arrs = append(arrs, arr)
		if nrows >= 0 && arr.Len() != nrows {
			return nil, fmt.Errorf("column %q: length %d, expected %d", col.Name, arr.Len(), nrows)
		}
		nrows = arr.Len()
		fields = append(fields, arrow.Field{Name: col.Name, Type: arr.DataType()})
	}
	if nrows < 0 {
		return Empty(), nil
	}
	return New(array.NewRecord(arrow.NewSchema(fields, nil), arrs, int64(nrows))), nil
}

func buildArray(mem memory.Allocator, values any) (arrow.Array, error) {
	switch vals := values.(type) {
	case []int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.AppendValues(vals, nil)
		return b.NewArray(), nil
	case []int32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.AppendValues(vals, nil)
		return b.NewArray(), nil
	case []float64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(vals, nil)
		return b.NewArray(), nil
	case []string:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(vals, nil)
		return b.NewArray(), nil
	case []bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(vals, nil)
		return b.NewArray(), nil
	default:
		return nil, fmt.Errorf("unsupported values %T", values)
	}
}

// Package table provides owned columnar tables, non-owning views into them,
// and the column-transport codec used to move tables across nodes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package table

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/apache/arrow/go/v8/arrow"
	"github.com/apache/arrow/go/v8/arrow/array"
	"github.com/apache/arrow/go/v8/arrow/memory"
)

// View is a non-owning range of rows. It borrows the table's storage and is only
// valid while the table is; crossing an ownership boundary requires Clone.
type View struct {
	t    *Table
	i, j int64
}

func (v View) Valid() bool           { return v.t.Valid() }
func (v View) NumRows() int64        { return v.j - v.i }
func (v View) NumColumns() int       { return v.t.NumColumns() }
func (v View) Schema() *arrow.Schema { return v.t.Schema() }

func (v View) String() string {
	return fmt.Sprintf("view[%d:%d of %s]", v.i, v.j, v.t)
}

// Clone deep-copies the viewed rows into a new, compact, owned table allocated from mem.
func (v View) Clone(mem memory.Allocator) (*Table, error) {
	rec := v.t.Record()
	sl := rec.NewSlice(v.i, v.j)
	defer sl.Release()

	cols := make([]arrow.Array, 0, sl.NumCols())
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()
	for i := 0; i < int(sl.NumCols()); i++ {
		col, err := array.Concatenate([]arrow.Array{sl.Column(i)}, mem)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to clone column %q", sl.ColumnName(i))
		}
		cols = append(cols, col)
	}
	return New(array.NewRecord(sl.Schema(), cols, v.NumRows())), nil
}

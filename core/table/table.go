// Package table provides owned columnar tables, non-owning views into them,
// and the column-transport codec used to move tables across nodes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package table

import (
	"fmt"

	"github.com/shxinding/blazingsql/cmn"

	"github.com/apache/arrow/go/v8/arrow"
	"github.com/apache/arrow/go/v8/arrow/array"
)

// Table owns an arrow.Record. Ownership moves with Move(); the old handle becomes
// invalid and any further use of it panics with cmn.ErrTableMoved.
type Table struct {
	rec arrow.Record
}

// New takes ownership of rec (no extra reference is taken).
func New(rec arrow.Record) *Table { return &Table{rec: rec} }

// Empty returns a zero-column, zero-row placeholder that carries nothing but metadata.
func Empty() *Table {
	return &Table{rec: array.NewRecord(arrow.NewSchema(nil, nil), nil, 0)}
}

func (t *Table) check() {
	if t == nil || t.rec == nil {
		panic(cmn.ErrTableMoved)
	}
}

func (t *Table) Valid() bool { return t != nil && t.rec != nil }

// Move transfers ownership to the returned handle.
func (t *Table) Move() *Table {
	t.check()
	nt := &Table{rec: t.rec}
	t.rec = nil
	return nt
}

// Release drops the record; a no-op on moved or released handles.
func (t *Table) Release() {
	if t != nil && t.rec != nil {
		t.rec.Release()
		t.rec = nil
	}
}

func (t *Table) Record() arrow.Record  { t.check(); return t.rec }
func (t *Table) Schema() *arrow.Schema { t.check(); return t.rec.Schema() }
func (t *Table) NumRows() int64        { t.check(); return t.rec.NumRows() }
func (t *Table) NumColumns() int       { t.check(); return int(t.rec.NumCols()) }
func (t *Table) Column(i int) arrow.Array {
	t.check()
	return t.rec.Column(i)
}

// View covers all rows.
func (t *Table) View() View {
	t.check()
	return View{t: t, i: 0, j: t.rec.NumRows()}
}

// Slice returns a view of rows [i, j); the view must not outlive the table.
func (t *Table) Slice(i, j int64) View {
	t.check()
	if i < 0 || j < i || j > t.rec.NumRows() {
		panic(fmt.Errorf("table slice [%d:%d] out of range [0:%d]", i, j, t.rec.NumRows()))
	}
	return View{t: t, i: i, j: j}
}

func (t *Table) String() string {
	if !t.Valid() {
		return "table[moved]"
	}
	return fmt.Sprintf("table[%d x %d]", t.rec.NumRows(), t.rec.NumCols())
}

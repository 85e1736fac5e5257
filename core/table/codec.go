// Package table provides owned columnar tables, non-owning views into them,
// and the column-transport codec used to move tables across nodes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package table

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/shxinding/blazingsql/cmn"

	"github.com/apache/arrow/go/v8/arrow"
	"github.com/apache/arrow/go/v8/arrow/array"
	"github.com/apache/arrow/go/v8/arrow/bitutil"
	"github.com/apache/arrow/go/v8/arrow/memory"
)

// upper bound on column length and offset; keeps size arithmetic in range
const maxLength = math.MaxInt32

// NoBuffer marks an absent (nil or empty) buffer in ColumnTransport.Buffers.
const NoBuffer = -1

const listItemName = "item"

// ColumnTransport describes one column (or nested child) on the wire: its type, shape,
// and the indices of its buffers in the message's flat buffer list.
type ColumnTransport struct {
	Name      string            `json:"name"`
	Buffers   []int32           `json:"buffers"`
	Children  []ColumnTransport `json:"children,omitempty"`
	Length    int64             `json:"length"`
	NullCount int64             `json:"null_count"`
	Offset    int64             `json:"offset"`
	TypeID    int32             `json:"type_id"`
	Nullable  bool              `json:"nullable"`
}

// number of top-level buffers per arrow layout
func numBuffers(id arrow.Type) int {
	switch id {
	case arrow.STRING, arrow.BINARY:
		return 3
	default:
		return 2
	}
}

func supported(id arrow.Type) bool {
	switch id {
	case arrow.BOOL, arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64, arrow.FLOAT32, arrow.FLOAT64,
		arrow.DATE32, arrow.DATE64, arrow.STRING, arrow.BINARY, arrow.LIST:
		return true
	default:
		return false
	}
}

func dataType(ct *ColumnTransport) (arrow.DataType, error) {
	switch arrow.Type(ct.TypeID) {
	case arrow.BOOL:
		return arrow.FixedWidthTypes.Boolean, nil
	case arrow.INT8:
		return arrow.PrimitiveTypes.Int8, nil
	case arrow.INT16:
		return arrow.PrimitiveTypes.Int16, nil
	case arrow.INT32:
		return arrow.PrimitiveTypes.Int32, nil
	case arrow.INT64:
		return arrow.PrimitiveTypes.Int64, nil
	case arrow.UINT8:
		return arrow.PrimitiveTypes.Uint8, nil
	case arrow.UINT16:
		return arrow.PrimitiveTypes.Uint16, nil
	case arrow.UINT32:
		return arrow.PrimitiveTypes.Uint32, nil
	case arrow.UINT64:
		return arrow.PrimitiveTypes.Uint64, nil
	case arrow.FLOAT32:
		return arrow.PrimitiveTypes.Float32, nil
	case arrow.FLOAT64:
		return arrow.PrimitiveTypes.Float64, nil
	case arrow.DATE32:
		return arrow.FixedWidthTypes.Date32, nil
	case arrow.DATE64:
		return arrow.FixedWidthTypes.Date64, nil
	case arrow.STRING:
		return arrow.BinaryTypes.String, nil
	case arrow.BINARY:
		return arrow.BinaryTypes.Binary, nil
	case arrow.LIST:
		if len(ct.Children) != 1 {
			return nil, cmn.NewErrInvalidHeader("list column %q: %d children", ct.Name, len(ct.Children))
		}
		elem, err := dataType(&ct.Children[0])
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	default:
		return nil, fmt.Errorf("column %q: unsupported type %s", ct.Name, arrow.Type(ct.TypeID))
	}
}

//
// encode
//

// Encode describes every column of t and returns the flat list of buffers to transmit.
// The buffers alias t's storage: t must stay alive until they have been sent.
func Encode(t *Table) (cts []ColumnTransport, bufs [][]byte, err error) {
	rec := t.Record()
	schema := rec.Schema()
	cts = make([]ColumnTransport, 0, rec.NumCols())
	for i := 0; i < int(rec.NumCols()); i++ {
		field := schema.Field(i)
		ct, err := encodeData(field.Name, field.Nullable, rec.Column(i).Data(), &bufs)
		if err != nil {
			return nil, nil, err
		}
		cts = append(cts, ct)
	}
	return cts, bufs, nil
}

func encodeData(name string, nullable bool, data arrow.ArrayData, bufs *[][]byte) (ColumnTransport, error) {
	ct := ColumnTransport{
		Name:      name,
		TypeID:    int32(data.DataType().ID()),
		Nullable:  nullable,
		Length:    int64(data.Len()),
		NullCount: nullCount(data),
		Offset:    int64(data.Offset()),
	}
	if !supported(data.DataType().ID()) {
		return ct, fmt.Errorf("column %q: unsupported type %s", name, data.DataType())
	}
	ct.Buffers = make([]int32, 0, len(data.Buffers()))
	for _, b := range data.Buffers() {
		if b == nil || b.Len() == 0 {
			ct.Buffers = append(ct.Buffers, NoBuffer)
			continue
		}
		ct.Buffers = append(ct.Buffers, int32(len(*bufs)))
		*bufs = append(*bufs, b.Bytes())
	}
	for _, child := range data.Children() {
		cct, err := encodeData(listItemName, true, child, bufs)
		if err != nil {
			return ct, err
		}
		ct.Children = append(ct.Children, cct)
	}
	return ct, nil
}

// clones (array.Concatenate) leave the null count unknown: count it from the bitmap
func nullCount(data arrow.ArrayData) int64 {
	if n := data.NullN(); n >= 0 {
		return int64(n)
	}
	bufs := data.Buffers()
	if len(bufs) == 0 || bufs[0] == nil || bufs[0].Len() == 0 {
		return 0
	}
	valid := bitutil.CountSetBits(bufs[0].Bytes(), data.Offset(), data.Len())
	return int64(data.Len() - valid)
}

//
// decode
//

// Decode assembles a table from column transports and the received buffers.
// The table takes its own references; the caller keeps (and eventually releases) its own.
func Decode(cts []ColumnTransport, bufs []*memory.Buffer) (*Table, error) {
	if len(cts) == 0 {
		return Empty(), nil
	}
	var (
		fields = make([]arrow.Field, 0, len(cts))
		cols   = make([]arrow.Array, 0, len(cts))
		nrows  = cts[0].Length
	)
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()
	for i := range cts {
		ct := &cts[i]
		if ct.Length != nrows {
			return nil, cmn.NewErrInvalidHeader("column %q: length %d, expected %d", ct.Name, ct.Length, nrows)
		}
		data, err := decodeData(ct, bufs)
		if err != nil {
			return nil, err
		}
		cols = append(cols, array.MakeFromData(data))
		data.Release()
		fields = append(fields, arrow.Field{Name: ct.Name, Type: cols[i].DataType(), Nullable: ct.Nullable})
	}
	rec := array.NewRecord(arrow.NewSchema(fields, nil), cols, nrows)
	return New(rec), nil
}

func decodeData(ct *ColumnTransport, bufs []*memory.Buffer) (*array.Data, error) {
	dt, err := dataType(ct)
	if err != nil {
		return nil, err
	}
	if ct.Length < 0 || ct.Offset < 0 || ct.Length > maxLength || ct.Offset > maxLength ||
		ct.NullCount < 0 || ct.NullCount > ct.Length {
		return nil, cmn.NewErrInvalidHeader("column %q: length %d, offset %d, nulls %d",
			ct.Name, ct.Length, ct.Offset, ct.NullCount)
	}
	if n := numBuffers(dt.ID()); len(ct.Buffers) != n {
		return nil, cmn.NewErrInvalidHeader("column %q (%s): %d buffers, expected %d", ct.Name, dt, len(ct.Buffers), n)
	}
	buffers := make([]*memory.Buffer, len(ct.Buffers))
	for i, idx := range ct.Buffers {
		switch {
		case idx == NoBuffer:
		case idx < 0 || int(idx) >= len(bufs):
			return nil, cmn.NewErrInvalidHeader("column %q: buffer index %d out of range [0, %d)", ct.Name, idx, len(bufs))
		default:
			buffers[i] = bufs[idx]
		}
	}
	if err := checkSizes(ct, dt, buffers); err != nil {
		return nil, err
	}
	var children []arrow.ArrayData
	for i := range ct.Children {
		child, err := decodeData(&ct.Children[i], bufs)
		if err != nil {
			for _, c := range children {
				c.Release()
			}
			return nil, err
		}
		children = append(children, child)
	}
	data := array.NewData(dt, int(ct.Length), buffers, children, int(ct.NullCount), int(ct.Offset))
	for _, c := range children {
		c.Release()
	}
	return data, nil
}

func bufLen(b *memory.Buffer) int64 {
	if b == nil {
		return 0
	}
	return int64(b.Len())
}

// guards against reading past the end of a short buffer; Length and Offset are
// already bounded by maxLength
func checkSizes(ct *ColumnTransport, dt arrow.DataType, buffers []*memory.Buffer) error {
	end := ct.Offset + ct.Length
	if ct.Length == 0 {
		return nil
	}
	if ct.NullCount > 0 && bufLen(buffers[0]) < bitutil.BytesForBits(end) {
		return cmn.NewErrInvalidHeader("column %q: validity bitmap too short", ct.Name)
	}
	switch dt := dt.(type) {
	case *arrow.BooleanType:
		if bufLen(buffers[1]) < bitutil.BytesForBits(end) {
			return errShort(ct, dt, buffers[1])
		}
	case arrow.FixedWidthDataType:
		if width := int64(dt.BitWidth() / 8); end > bufLen(buffers[1])/width {
			return errShort(ct, dt, buffers[1])
		}
	case *arrow.StringType, *arrow.BinaryType, *arrow.ListType:
		if end+1 > bufLen(buffers[1])/int64(arrow.Int32SizeBytes) {
			return errShort(ct, dt, buffers[1])
		}
		last, err := checkOffsets(ct, buffers[1].Bytes())
		if err != nil {
			return err
		}
		var have int64
		if dt.ID() == arrow.LIST {
			have = ct.Children[0].Length
		} else {
			have = bufLen(buffers[2])
		}
		if last > have {
			return cmn.NewErrInvalidHeader("column %q (%s): offsets reach %d, values hold %d", ct.Name, dt, last, have)
		}
	}
	return nil
}

// offsets of rows [Offset, Offset+Length] must be non-negative and non-decreasing
func checkOffsets(ct *ColumnTransport, b []byte) (last int64, err error) {
	prev := int64(math.MinInt32)
	for i := ct.Offset; i <= ct.Offset+ct.Length; i++ {
		v := int64(int32(binary.LittleEndian.Uint32(b[int(i)*arrow.Int32SizeBytes:])))
		if v < 0 || v < prev {
			return 0, cmn.NewErrInvalidHeader("column %q: invalid offset %d at %d", ct.Name, v, i)
		}
		prev = v
	}
	return prev, nil
}

func errShort(ct *ColumnTransport, dt arrow.DataType, b *memory.Buffer) error {
	return cmn.NewErrInvalidHeader("column %q (%s): buffer of %d bytes is too short for %d rows at offset %d",
		ct.Name, dt, bufLen(b), ct.Length, ct.Offset)
}

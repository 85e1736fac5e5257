/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"math"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// begin-transmission header (msgpack):
//
//	[ [ct, ...], [size, ...], {key: value, ...} ]
//
// where ct = [name, type_id, nullable, length, null_count, offset, [buf, ...], [ct, ...]]
// and the metadata map keeps the order it was written in.

const (
	hdrFields = 3
	ctFields  = 8

	maxNesting = 16
)

// Header is the decoded begin-transmission frame.
type Header struct {
	Transports []table.ColumnTransport
	Sizes      []int64
	MD         []meta.KV
}

func EncodeHeader(cts []table.ColumnTransport, sizes []int64, md []meta.KV) []byte {
	b := make([]byte, 0, 256+32*len(sizes)+64*len(md))
	b = msgp.AppendArrayHeader(b, hdrFields)

	b = msgp.AppendArrayHeader(b, uint32(len(cts)))
	for i := range cts {
		b = appendCT(b, &cts[i])
	}
	b = msgp.AppendArrayHeader(b, uint32(len(sizes)))
	for _, size := range sizes {
		b = msgp.AppendInt64(b, size)
	}
	b = msgp.AppendMapHeader(b, uint32(len(md)))
	for _, kv := range md {
		b = msgp.AppendString(b, kv.Key)
		b = msgp.AppendString(b, kv.Value)
	}
	return b
}

func appendCT(b []byte, ct *table.ColumnTransport) []byte {
	b = msgp.AppendArrayHeader(b, ctFields)
	b = msgp.AppendString(b, ct.Name)
	b = msgp.AppendInt32(b, ct.TypeID)
	b = msgp.AppendBool(b, ct.Nullable)
	b = msgp.AppendInt64(b, ct.Length)
	b = msgp.AppendInt64(b, ct.NullCount)
	b = msgp.AppendInt64(b, ct.Offset)
	b = msgp.AppendArrayHeader(b, uint32(len(ct.Buffers)))
	for _, idx := range ct.Buffers {
		b = msgp.AppendInt32(b, idx)
	}
	b = msgp.AppendArrayHeader(b, uint32(len(ct.Children)))
	for i := range ct.Children {
		b = appendCT(b, &ct.Children[i])
	}
	return b
}

// DecodeHeader parses and cross-checks a begin-transmission header.
func DecodeHeader(b []byte) (*Header, error) {
	hdr, err := decodeHeader(b)
	if err != nil {
		if cmn.IsErrInvalidHeader(err) {
			return nil, err
		}
		return nil, cmn.NewErrInvalidHeader("%v", err)
	}
	return hdr, nil
}

func decodeHeader(b []byte) (hdr *Header, err error) {
	var n uint32
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	if n != hdrFields {
		return nil, cmn.NewErrInvalidHeader("expecting %d fields, got %d", hdrFields, n)
	}
	hdr = &Header{}

	// transports
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	hdr.Transports = make([]table.ColumnTransport, n)
	for i := range hdr.Transports {
		if b, err = readCT(b, &hdr.Transports[i], 0); err != nil {
			return nil, errors.Wrapf(err, "column %d", i)
		}
	}

	// sizes
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	if n > MaxBuffers {
		return nil, cmn.NewErrInvalidHeader("too many buffers (%d)", n)
	}
	hdr.Sizes = make([]int64, n)
	for i := range hdr.Sizes {
		if hdr.Sizes[i], b, err = msgp.ReadInt64Bytes(b); err != nil {
			return nil, err
		}
		if hdr.Sizes[i] < 0 {
			return nil, cmn.NewErrInvalidHeader("buffer %d: negative size %d", i, hdr.Sizes[i])
		}
	}

	// metadata
	if n, b, err = msgp.ReadMapHeaderBytes(b); err != nil {
		return nil, err
	}
	hdr.MD = make([]meta.KV, n)
	for i := range hdr.MD {
		if hdr.MD[i].Key, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, err
		}
		if hdr.MD[i].Value, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, err
		}
	}
	if len(b) != 0 {
		return nil, cmn.NewErrInvalidHeader("%d trailing bytes", len(b))
	}
	return hdr, hdr.validate()
}

func readCT(b []byte, ct *table.ColumnTransport, depth int) (_ []byte, err error) {
	if depth > maxNesting {
		return nil, cmn.NewErrInvalidHeader("nesting too deep (%d)", depth)
	}
	var n uint32
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	if n != ctFields {
		return nil, cmn.NewErrInvalidHeader("column transport: expecting %d fields, got %d", ctFields, n)
	}
	if ct.Name, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, err
	}
	if ct.TypeID, b, err = msgp.ReadInt32Bytes(b); err != nil {
		return nil, err
	}
	if ct.Nullable, b, err = msgp.ReadBoolBytes(b); err != nil {
		return nil, err
	}
	if ct.Length, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, err
	}
	if ct.NullCount, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, err
	}
	if ct.Offset, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, err
	}
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	ct.Buffers = make([]int32, n)
	for i := range ct.Buffers {
		if ct.Buffers[i], b, err = msgp.ReadInt32Bytes(b); err != nil {
			return nil, err
		}
	}
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	if n > 0 {
		ct.Children = make([]table.ColumnTransport, n)
		for i := range ct.Children {
			if b, err = readCT(b, &ct.Children[i], depth+1); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// every referenced buffer must exist and row ranges must fit in 32 bits
func (hdr *Header) validate() error {
	for i := range hdr.Transports {
		if err := checkRefs(&hdr.Transports[i], len(hdr.Sizes)); err != nil {
			return err
		}
	}
	return nil
}

func checkRefs(ct *table.ColumnTransport, num int) error {
	if ct.Length < 0 || ct.Length > math.MaxInt32 || ct.Offset < 0 || ct.Offset > math.MaxInt32 {
		return cmn.NewErrInvalidHeader("column %q: length %d, offset %d out of range", ct.Name, ct.Length, ct.Offset)
	}
	for _, idx := range ct.Buffers {
		if idx != table.NoBuffer && (idx < 0 || int(idx) >= num) {
			return cmn.NewErrInvalidHeader("column %q references buffer %d out of %d", ct.Name, idx, num)
		}
	}
	for i := range ct.Children {
		if err := checkRefs(&ct.Children[i], num); err != nil {
			return err
		}
	}
	return nil
}

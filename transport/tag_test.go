/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport_test

import (
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"
	"github.com/shxinding/blazingsql/transport"

	"github.com/apache/arrow/go/v8/arrow"
	"github.com/apache/arrow/go/v8/arrow/memory"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tag", func() {
	It("should lay out message id, origin and frame", func() {
		tag := transport.Tag{MessageID: 5, WorkerOrigin: 3, FrameID: 2}
		Expect(tag.Uint64()).To(Equal(uint64(5) | uint64(3)<<32 | uint64(2)<<48))
		Expect(transport.ParseTag(tag.Uint64())).To(Equal(tag))
	})

	It("should keep the message id 32 bits wide", func() {
		tag := transport.Tag{MessageID: -1, WorkerOrigin: 0xffff}
		Expect(tag.Uint64()).To(Equal(uint64(0xffffffff) | uint64(0xffff)<<32))
		Expect(transport.ParseTag(tag.Uint64()).MessageID).To(Equal(int32(-1)))
	})

	It("should number payload frames from one", func() {
		tag := transport.NewTag(10, 2)
		Expect(tag.IsBegin()).To(BeTrue())
		f := tag.Frame(0)
		Expect(f.FrameID).To(Equal(uint16(1)))
		Expect(f.BufferIndex()).To(Equal(0))
		Expect(f.Begin()).To(Equal(tag))
		Expect(func() { transport.NewTag(1, 1<<16) }).To(Panic())
	})

	It("should hand out increasing ids", func() {
		c := transport.NewCounter(100)
		Expect(c.Next()).To(Equal(int32(100)))
		Expect(c.Next()).To(Equal(int32(101)))
	})

	It("should carry frame headers through string headers", func() {
		hdr := &transport.FrameHdr{
			Tag:      transport.NewTag(7, 1).Frame(3),
			SenderID: "n1",
			Size:     10,
			RawSize:  64,
			Flags:    transport.FlagCompressed,
		}
		h := map[string]string{}
		hdr.Export(func(k, v string) { h[k] = v })
		got, err := transport.ImportFrameHdr(func(k string) string { return h[k] }, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(*got).To(Equal(*hdr))

		_, err = transport.ImportFrameHdr(func(string) string { return "x" }, 1)
		Expect(cmn.IsErrInvalidHeader(err)).To(BeTrue())
	})
})

var _ = Describe("Header", func() {
	var md *meta.Metadata

	BeforeEach(func() {
		md = meta.NewMetadata().SetMessageID("p_q_1_n0").SetKernelID(1).SetSenderID("n0")
		Expect(md.SetExtra("x-custom", "42")).To(Succeed())
	})

	It("should round-trip transports, sizes and ordered metadata", func() {
		tbl := newTable(memory.DefaultAllocator, []int64{1, 2, 3}, []string{"a", "bb", "ccc"})
		defer tbl.Release()
		cts, bufs, err := table.Encode(tbl)
		Expect(err).NotTo(HaveOccurred())
		sizes := make([]int64, len(bufs))
		for i := range bufs {
			sizes[i] = int64(len(bufs[i]))
		}
		hdr, err := transport.DecodeHeader(transport.EncodeHeader(cts, sizes, md.Wire()))
		Expect(err).NotTo(HaveOccurred())
		Expect(hdr.Transports).To(Equal(cts))
		Expect(hdr.Sizes).To(Equal(sizes))
		Expect(hdr.MD).To(Equal(md.Wire()))
	})

	It("should round-trip nested transports", func() {
		cts := []table.ColumnTransport{{
			Name: "l", TypeID: int32(arrow.LIST), Length: 2, Buffers: []int32{table.NoBuffer, 0},
			Children: []table.ColumnTransport{{Name: "item", TypeID: int32(arrow.INT64), Length: 3, Buffers: []int32{table.NoBuffer, 1}}},
		}}
		hdr, err := transport.DecodeHeader(transport.EncodeHeader(cts, []int64{12, 24}, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(hdr.Transports[0].Children).To(HaveLen(1))
		Expect(hdr.Transports[0].Children[0].Buffers).To(Equal([]int32{table.NoBuffer, 1}))
	})

	DescribeTable("should reject malformed headers",
		func(b []byte) {
			_, err := transport.DecodeHeader(b)
			Expect(err).To(HaveOccurred())
			Expect(cmn.IsErrInvalidHeader(err)).To(BeTrue())
		},
		Entry("empty", []byte{}),
		Entry("garbage", []byte{0xc1, 0x00, 0x01}),
		Entry("truncated", func() []byte {
			b := transport.EncodeHeader(nil, []int64{1, 2}, []meta.KV{{Key: "message_id", Value: "m"}})
			return b[:len(b)-2]
		}()),
		Entry("trailing bytes", append(transport.EncodeHeader(nil, nil, nil), 0x00)),
		Entry("buffer reference out of range", transport.EncodeHeader(
			[]table.ColumnTransport{{Name: "c", TypeID: int32(arrow.INT64), Length: 1, Buffers: []int32{table.NoBuffer, 1}}},
			[]int64{8}, nil)),
		Entry("negative size", transport.EncodeHeader(nil, []int64{-1}, nil)),
		Entry("row count out of range", transport.EncodeHeader(
			[]table.ColumnTransport{{Name: "c", TypeID: int32(arrow.INT64), Length: 1 << 61, Buffers: []int32{table.NoBuffer, 0}}},
			[]int64{8}, nil)),
		Entry("negative offset", transport.EncodeHeader(
			[]table.ColumnTransport{{Name: "c", TypeID: int32(arrow.INT64), Length: 1, Offset: -1, Buffers: []int32{table.NoBuffer, 0}}},
			[]int64{8}, nil)),
	)
})

// Package meta_test provides tests for the meta package
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package meta_test

import (
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/core/meta"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Metadata", func() {
	full := func() *meta.Metadata {
		md := meta.NewMetadata().
			SetKernelID(4).
			SetQueryID("q1").
			SetSpecificCache(true).
			SetCacheID("output_1").
			SetSenderID("w0").
			SetWorkerIDs(meta.NodeIDs{"w1", "w2"}).
			SetTotalRows(1000).
			SetMessageID("q1_4_w0").
			SetPartitionCount(5)
		Expect(md.SetExtra("stage", "join")).To(Succeed())
		return md
	}

	It("should serialize closed keys in order, then extras", func() {
		Expect(full().Wire()).To(Equal([]meta.KV{
			{Key: "kernel_id", Value: "4"},
			{Key: "query_id", Value: "q1"},
			{Key: "add_to_specific_cache", Value: "true"},
			{Key: "cache_id", Value: "output_1"},
			{Key: "sender_worker_id", Value: "w0"},
			{Key: "worker_ids", Value: "w1,w2"},
			{Key: "total_table_rows", Value: "1000"},
			{Key: "message_id", Value: "q1_4_w0"},
			{Key: "partition_count", Value: "5"},
			{Key: "stage", Value: "join"},
		}))
	})

	It("should round-trip through the wire form", func() {
		md := full()
		back, err := meta.FromWire(md.Wire())
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Equal(md)).To(BeTrue())
		Expect(back.WorkerIDs()).To(Equal(meta.NodeIDs{"w1", "w2"}))
		Expect(back.KernelID()).To(Equal(int32(4)))

		fromMap, err := meta.FromMap(md.Map())
		Expect(err).NotTo(HaveOccurred())
		Expect(fromMap.Equal(md)).To(BeTrue())
	})

	It("should only emit present keys", func() {
		md := meta.NewMetadata().SetMessageID("m")
		Expect(md.Wire()).To(Equal([]meta.KV{{Key: "message_id", Value: "m"}}))
		Expect(md.SpecificCache()).To(BeFalse())
		_, ok := md.TotalRows()
		Expect(ok).To(BeFalse())
	})

	It("should distinguish a missing partition count", func() {
		md := meta.NewMetadata().SetMessageID("m")
		_, err := md.PartitionCount()
		Expect(cmn.IsErrMissingMetadata(err)).To(BeTrue())

		md.SetPartitionCount(0)
		n, err := md.PartitionCount()
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	DescribeTable("should fail on unparseable values",
		func(key, value string) {
			_, err := meta.FromWire([]meta.KV{{Key: key, Value: value}})
			Expect(err).To(HaveOccurred())
			var e *cmn.ErrInvalidMetadata
			Expect(err).To(BeAssignableToTypeOf(e))
		},
		Entry("kernel id", "kernel_id", "four"),
		Entry("kernel id overflow", "kernel_id", "4294967296"),
		Entry("partition count", "partition_count", ""),
		Entry("total rows", "total_table_rows", "1e3"),
		Entry("specific cache flag", "add_to_specific_cache", "yes"),
		Entry("worker ids", "worker_ids", "w1,,w2"),
	)

	It("should not let extras overload closed keys", func() {
		md := meta.NewMetadata()
		Expect(md.SetExtra("partition_count", "7")).NotTo(Succeed())
		_, err := md.PartitionCount()
		Expect(err).To(HaveOccurred())
	})

	It("should merge with the other side winning", func() {
		md := meta.NewMetadata().SetMessageID("m").SetCacheID("a")
		extra := meta.NewMetadata().SetCacheID("b").SetPartitionCount(3)
		Expect(extra.SetExtra("x", "y")).To(Succeed())

		md.Merge(extra)
		Expect(md.CacheID()).To(Equal("b"))
		Expect(md.MessageID()).To(Equal("m"))
		n, err := md.PartitionCount()
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(3)))
		v, ok := md.Extra("x")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("y"))
	})

	It("should clone deeply", func() {
		md := full()
		clone := md.Clone()
		Expect(clone.Equal(md)).To(BeTrue())
		clone.SetCacheID("other")
		Expect(md.CacheID()).To(Equal("output_1"))
	})
})

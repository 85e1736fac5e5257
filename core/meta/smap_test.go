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

var _ = Describe("Smap", func() {
	var (
		n0, n1, n2 *meta.Snode
		smap       *meta.Smap
	)

	BeforeEach(func() {
		var err error
		n0 = meta.NewSnode("w0", "http://localhost:9080")
		n1 = meta.NewSnode("w1", "http://localhost:9081")
		n2 = meta.NewSnode("w2", "http://localhost:9082")
		smap, err = meta.NewSmap(n0, n1, n2)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should keep membership order", func() {
		Expect(smap.CountNodes()).To(Equal(3))
		Expect(smap.AllNodes().IDs()).To(Equal(meta.NodeIDs{"w0", "w1", "w2"}))
		Expect(smap.NodeIndex(n2)).To(Equal(2))
		Expect(smap.NodeIndex(meta.NewSnode("w9", ""))).To(Equal(-1))
		Expect(smap.GetNode("w1")).To(BeIdenticalTo(n1))
		Expect(smap.NodeMap().Contains("w0")).To(BeTrue())
	})

	It("should list all other nodes", func() {
		Expect(smap.AllOtherNodes(0).IDs()).To(Equal(meta.NodeIDs{"w1", "w2"}))
		Expect(smap.AllOtherNodes(1).IDs()).To(Equal(meta.NodeIDs{"w0", "w2"}))
		Expect(smap.AllOtherNodes(2).IDs()).To(Equal(meta.NodeIDs{"w0", "w1"}))
		// the underlying membership is not aliased
		others := smap.AllOtherNodes(0)
		others[0] = n0
		Expect(smap.AllNodes()[1]).To(BeIdenticalTo(n1))
	})

	It("should reject duplicates and invalid ids", func() {
		_, err := meta.NewSmap(n0, meta.NewSnode("w0", "http://elsewhere"))
		Expect(err).To(HaveOccurred())
		_, err = meta.NewSmap(meta.NewSnode("a,b", ""))
		Expect(err).To(HaveOccurred())
		_, err = meta.NewSmap(meta.NewSnode("", ""))
		Expect(err).To(HaveOccurred())
	})

	It("should resolve node ids", func() {
		nodes, err := smap.Resolve(meta.NodeIDs{"w2", "w0"})
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(Equal(meta.Nodes{n2, n0}))

		_, err = smap.Resolve(meta.NodeIDs{"w7"})
		Expect(cmn.IsErrUnknownNode(err)).To(BeTrue())
	})

	It("should compare nodes by id and digest them", func() {
		Expect(n0.Equals(meta.NewSnode("w0", "http://other:1"))).To(BeTrue())
		Expect(n0.Equals(n1)).To(BeFalse())
		Expect(n0.Digest()).To(Equal(meta.NewSnode("w0", "").Digest()))
		Expect(n0.Digest()).NotTo(Equal(n1.Digest()))
		Expect(n0.String()).To(Equal("n[w0]"))
	})
})

var _ = Describe("NodeIDs", func() {
	It("should join and split at the wire boundary", func() {
		ids, err := meta.NewNodeIDs("w2", "w0", "w2", "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal(meta.NodeIDs{"w2", "w0", "w1"}))
		Expect(ids.Wire()).To(Equal("w2,w0,w1"))

		back, err := meta.ParseNodeIDs(ids.Wire())
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Equal(ids)).To(BeTrue())
	})

	It("should parse an empty set", func() {
		ids, err := meta.ParseNodeIDs("")
		Expect(err).NotTo(HaveOccurred())
		Expect(ids.Len()).To(BeZero())
	})

	DescribeTable("should reject ids that would be ambiguous on the wire",
		func(ids ...string) {
			_, err := meta.NewNodeIDs(ids...)
			Expect(err).To(HaveOccurred())
		},
		Entry("empty id", "w0", ""),
		Entry("separator in id", "w0,w1"),
	)

	It("should reject empty elements when parsing", func() {
		_, err := meta.ParseNodeIDs("w0,,w1")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("MessageID", func() {
	It("should be deterministic", func() {
		a := meta.MessageID("", "q7", 3, "w1")
		b := meta.MessageID("", "q7", 3, "w1")
		Expect(a).To(Equal("q7_3_w1"))
		Expect(a).To(Equal(b))
	})

	It("should be distinguished by prefix", func() {
		Expect(meta.MessageID("P0_", "q7", 3, "w1")).NotTo(Equal(meta.MessageID("P1_", "q7", 3, "w1")))
		Expect(meta.MessageID("P0_", "q7", 3, "w1")).To(Equal("P0_q7_3_w1"))
	})
})

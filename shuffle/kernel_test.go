/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package shuffle_test

import (
	"context"
	"time"

	"github.com/shxinding/blazingsql/cache"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"
	"github.com/shxinding/blazingsql/memsys"
	"github.com/shxinding/blazingsql/shuffle"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Kernel", func() {
	var (
		smap   *meta.Smap
		snodes meta.Nodes
		mm     *memsys.MMSA
		in     *cache.Mem
		out    *cache.Mem
		k      *shuffle.Kernel
	)

	BeforeEach(func() {
		smap, snodes = newSmap(3)
		qctx, err := shuffle.NewContext(token, smap, snodes[0])
		Expect(err).NotTo(HaveOccurred())
		mm = memsys.NewTestMMSA("kernel")
		in, out = cache.NewMem("input"), cache.NewMem("output")
		k = shuffle.NewKernel(kernelID, qctx, in, out, shuffle.WithMem(mm), shuffle.WithPullTimeout(time.Second))
		k.SetNumberOfMessageTrackers(2)
	})

	AfterEach(func() {
		in.Close()
		out.Close()
		Eventually(mm.Outstanding).Should(BeZero())
	})

	pullOut := func(msgID string) *cache.Data {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d, err := out.PullCacheData(ctx, msgID)
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	It("should reject a self that is not in the cluster", func() {
		_, err := shuffle.NewContext(token, smap, meta.NewSnode("stranger", "http://x"))
		Expect(err).To(HaveOccurred())
	})

	Describe("SendMessage", func() {
		It("should derive the message id and move the table", func() {
			tbl := newTable(mm, 0, 4)
			msgID, err := k.SendMessage(tbl, &shuffle.SendArgs{
				Targets:   meta.NodeIDs{"n1"},
				Prefix:    "p_",
				CacheID:   "c",
				Specific:  true,
				HasTotal:  true,
				TotalRows: 4,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgID).To(Equal(meta.MessageID("p_", token, kernelID, "n0")))
			Expect(tbl.Valid()).To(BeFalse())

			d := pullOut(msgID)
			defer d.Release()
			Expect(keysOf(d.Table)).To(Equal([]int64{0, 1, 2, 3}))
			Expect(d.MD.MessageID()).To(Equal(msgID))
			Expect(d.MD.SenderID()).To(Equal("n0"))
			Expect(d.MD.QueryID()).To(Equal(token))
			Expect(d.MD.KernelID()).To(Equal(kernelID))
			Expect(d.MD.CacheID()).To(Equal("c"))
			Expect(d.MD.SpecificCache()).To(BeTrue())
			Expect(d.MD.WorkerIDs()).To(Equal(meta.NodeIDs{"n1"}))
			rows, ok := d.MD.TotalRows()
			Expect(ok).To(BeTrue())
			Expect(rows).To(BeEquivalentTo(4))

			Expect(k.NodeCount(0, "n1")).To(Equal(1))
			Expect(k.WaitList(0)).To(BeEmpty())
		})

		It("should send a placeholder for a nil table and merge extra metadata", func() {
			msgID, err := k.SendMessage(nil, &shuffle.SendArgs{
				Targets: meta.NodeIDs{"n1", "n2"},
				WaitFor: true,
				Tracker: 1,
				Extra:   meta.NewMetadata().SetPartitionCount(3),
			})
			Expect(err).NotTo(HaveOccurred())
			d := pullOut(msgID)
			defer d.Release()
			Expect(d.Table.NumRows()).To(BeZero())
			Expect(d.Table.NumColumns()).To(BeZero())
			cnt, err := d.MD.PartitionCount()
			Expect(err).NotTo(HaveOccurred())
			Expect(cnt).To(BeEquivalentTo(3))
			Expect(d.MD.SpecificCache()).To(BeFalse())

			Expect(k.WaitList(1)).To(Equal([]string{
				meta.MessageID("", token, kernelID, "n1"),
				meta.MessageID("", token, kernelID, "n2"),
			}))
			Expect(k.WaitList(0)).To(BeEmpty())
			Expect(k.NodeCount(1, "n1")).To(BeZero())
		})

		It("should fail on unknown targets and release the table", func() {
			_, err := k.SendMessage(newTable(mm, 0, 2), &shuffle.SendArgs{Targets: meta.NodeIDs{"n9"}})
			Expect(err).To(HaveOccurred())
			_, err = k.SendMessage(newTable(mm, 0, 2), &shuffle.SendArgs{})
			Expect(err).To(HaveOccurred())
			Expect(out.Len()).To(BeZero())
		})

		It("should panic on a tracker out of range", func() {
			Expect(func() {
				k.SendMessage(nil, &shuffle.SendArgs{Targets: meta.NodeIDs{"n1"}, Specific: true, Tracker: 2})
			}).To(Panic())
		})
	})

	It("should broadcast a single message to all other nodes", func() {
		tbl := newTable(mm, 0, 5)
		defer tbl.Release()
		Expect(k.Broadcast(tbl.Slice(1, 4), nil, "b_", "bcast", 1)).To(Succeed())
		Expect(out.Len()).To(Equal(1))
		Expect(tbl.Valid()).To(BeTrue())

		d := pullOut(meta.MessageID("b_", token, kernelID, "n0"))
		defer d.Release()
		Expect(keysOf(d.Table)).To(Equal([]int64{1, 2, 3}))
		Expect(d.MD.WorkerIDs()).To(Equal(meta.NodeIDs{"n1", "n2"}))
		Expect(d.MD.CacheID()).To(Equal("bcast"))
		Expect(k.NodeCount(1, "n1")).To(Equal(1))
		Expect(k.NodeCount(1, "n2")).To(Equal(1))
		Expect(k.NodeCount(1, "n0")).To(BeZero())
	})

	Describe("Scatter", func() {
		It("should keep the own partition and send the rest", func() {
			tbl := newTable(mm, 0, 9)
			defer tbl.Release()
			local := cache.NewMem("local")
			defer local.Close()

			parts := []table.View{tbl.Slice(0, 3), tbl.Slice(3, 6), tbl.Slice(6, 9)}
			Expect(k.Scatter(parts, local, "s_", "scatter", 0)).To(Succeed())

			Expect(local.Len()).To(Equal(1))
			Expect(out.Len()).To(Equal(2))
			for _, id := range []string{"n0", "n1", "n2"} {
				Expect(k.NodeCount(0, id)).To(Equal(1))
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			d, err := local.PullCacheData(ctx, "s_")
			Expect(err).NotTo(HaveOccurred())
			Expect(keysOf(d.Table)).To(Equal([]int64{0, 1, 2}))
			d.Release()

			for i := range 2 {
				d, err := out.Pull(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(d.MD.WorkerIDs()).To(HaveLen(1))
				Expect(d.MD.WorkerIDs()[0]).To(Equal(snodes[i+1].ID()))
				Expect(keysOf(d.Table)[0]).To(BeEquivalentTo(3 * (i + 1)))
				d.Release()
			}
		})

		It("should insist on one partition per node", func() {
			tbl := newTable(mm, 0, 4)
			defer tbl.Release()
			Expect(func() {
				k.Scatter([]table.View{tbl.Slice(0, 2), tbl.Slice(2, 4)}, out, "s_", "scatter", 0)
			}).To(Panic())
		})
	})

	It("should scatter node column views into slot caches", func() {
		// 2 nodes, 2 slots per node
		smap2, snodes2 := newSmap(2)
		qctx, err := shuffle.NewContext(token, smap2, snodes2[1])
		Expect(err).NotTo(HaveOccurred())
		k2 := shuffle.NewKernel(kernelID, qctx, in, out, shuffle.WithMem(mm))
		k2.SetNumberOfMessageTrackers(1)

		tbl := newTable(mm, 0, 8)
		defer tbl.Release()
		local := cache.NewRegistry()
		defer local.Close()
		router := &routedCache{reg: local}

		parts := []shuffle.NodeColumnView{
			{Node: snodes2[0], View: tbl.Slice(0, 2)},
			{Node: snodes2[0], View: tbl.Slice(2, 3)},
			{Node: snodes2[1], View: tbl.Slice(3, 6)},
			{Node: snodes2[1], View: tbl.Slice(6, 8)},
		}
		Expect(k2.ScatterNodeColumnViews(parts, router, "v_", 0)).To(Succeed())

		// positions 0 and 1 travel to n0 under one message id, in order
		Expect(out.Len()).To(Equal(2))
		msgID := meta.MessageID("v_", token, kernelID, "n1")
		for i, want := range [][]int64{{0, 1}, {2}} {
			d := pullOut(msgID)
			Expect(d.MD.CacheID()).To(Equal(shuffle.SlotCacheID(i, 2)))
			Expect(d.MD.WorkerIDs()).To(Equal(meta.NodeIDs{"n0"}))
			Expect(keysOf(d.Table)).To(Equal(want))
			d.Release()
		}

		// positions 2 and 3 stay local, in output_0 and output_1
		Expect(local.Names()).To(ConsistOf(shuffle.SlotCacheID(2, 2), shuffle.SlotCacheID(3, 2)))
		for name, want := range map[string][]int64{"output_0": {3, 4, 5}, "output_1": {6, 7}} {
			c := local.Get(name)
			Expect(c.Len()).To(Equal(1))
			d, err := c.Pull(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(keysOf(d.Table)).To(Equal(want))
			d.Release()
		}
		Expect(k2.NodeCount(0, "n0")).To(Equal(2))
		Expect(k2.NodeCount(0, "n1")).To(Equal(2))
	})

	It("should skip empty node column views", func() {
		smap2, snodes2 := newSmap(2)
		qctx, err := shuffle.NewContext(token, smap2, snodes2[1])
		Expect(err).NotTo(HaveOccurred())
		k2 := shuffle.NewKernel(kernelID, qctx, in, out, shuffle.WithMem(mm))
		k2.SetNumberOfMessageTrackers(1)

		tbl := newTable(mm, 0, 4)
		defer tbl.Release()
		local := cache.NewRegistry()
		defer local.Close()
		router := &routedCache{reg: local}

		parts := []shuffle.NodeColumnView{
			{Node: snodes2[0], View: tbl.Slice(0, 0)},
			{Node: snodes2[0], View: tbl.Slice(0, 2)},
			{Node: snodes2[1], View: tbl.Slice(2, 4)},
			{Node: snodes2[1], View: tbl.Slice(4, 4)},
		}
		Expect(k2.ScatterNodeColumnViews(parts, router, "v_", 0)).To(Succeed())

		Expect(out.Len()).To(Equal(1))
		d := pullOut(meta.MessageID("v_", token, kernelID, "n1"))
		Expect(d.MD.CacheID()).To(Equal(shuffle.SlotCacheID(1, 2)))
		Expect(keysOf(d.Table)).To(Equal([]int64{0, 1}))
		d.Release()

		Expect(local.Names()).To(Equal([]string{shuffle.SlotCacheID(2, 2)}))
		Expect(local.Get("output_0").Len()).To(Equal(1))
		Expect(k2.NodeCount(0, "n0")).To(Equal(1))
		Expect(k2.NodeCount(0, "n1")).To(Equal(1))
	})

	It("should panic when there are fewer partitions than nodes", func() {
		Expect(func() { k.ScatterNodeColumnViews(nil, out, "v_", 0) }).To(Panic())
	})

	Describe("GetTotalPartitionCounts", func() {
		It("should return the local count when waiting for nothing", func() {
			k.IncrementNodeCount("n0", 0)
			k.IncrementNodeCount("n0", 0)
			k.IncrementNodeCount("n1", 0)
			total, err := k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(2))
		})

		It("should add up counts pulled from the input cache and memoize", func() {
			k.IncrementNodeCount("n0", 0)
			k.IncrementNodeCount("n1", 0)
			Expect(k.SendTotalPartitionCounts("t_", "", 0)).To(Succeed())
			Expect(out.Len()).To(Equal(2))
			Expect(k.WaitList(0)).To(HaveLen(2))

			for _, peer := range []string{"n1", "n2"} {
				md := meta.NewMetadata().SetPartitionCount(4).SetMessageID(meta.MessageID("t_", token, kernelID, peer))
				in.AddCacheData(cache.NewData(table.Empty(), md), md.MessageID(), true)
			}
			total, err := k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(9))
			Expect(in.Len()).To(BeZero())

			total, err = k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(9))
		})

		It("should recount once more partitions or messages are tracked", func() {
			k.IncrementNodeCount("n0", 0)
			total, err := k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))

			k.IncrementNodeCount("n0", 0)
			total, err = k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(2))

			Expect(k.SendTotalPartitionCounts("t_", "", 0)).To(Succeed())
			for _, peer := range []string{"n1", "n2"} {
				md := meta.NewMetadata().SetPartitionCount(3).SetMessageID(meta.MessageID("t_", token, kernelID, peer))
				in.AddCacheData(cache.NewData(table.Empty(), md), md.MessageID(), true)
			}
			total, err = k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(8))

			// a second round of counts adds to the first
			Expect(k.SendTotalPartitionCounts("u_", "", 0)).To(Succeed())
			Expect(k.WaitList(0)).To(HaveLen(2))
			for _, peer := range []string{"n1", "n2"} {
				md := meta.NewMetadata().SetPartitionCount(1).SetMessageID(meta.MessageID("u_", token, kernelID, peer))
				in.AddCacheData(cache.NewData(table.Empty(), md), md.MessageID(), true)
			}
			total, err = k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(10))

			for out.Len() > 0 {
				d, err := out.Pull(context.Background())
				Expect(err).NotTo(HaveOccurred())
				d.Release()
			}
		})

		It("should keep partial progress across a timeout", func() {
			k = shuffle.NewKernel(kernelID, k.Context(), in, out, shuffle.WithPullTimeout(50*time.Millisecond),
				shuffle.WithConcurrentPulls(true))
			k.SetNumberOfMessageTrackers(1)
			Expect(k.SendTotalPartitionCounts("t_", "", 0)).To(Succeed())
			// drain the outbound counts
			for range 2 {
				d, err := out.Pull(context.Background())
				Expect(err).NotTo(HaveOccurred())
				d.Release()
			}
			md := meta.NewMetadata().SetPartitionCount(2).SetMessageID(meta.MessageID("t_", token, kernelID, "n1"))
			in.AddCacheData(cache.NewData(table.Empty(), md), md.MessageID(), true)

			_, err := k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).To(HaveOccurred())
			Expect(k.WaitList(0)).To(Equal([]string{meta.MessageID("t_", token, kernelID, "n2")}))

			md = meta.NewMetadata().SetPartitionCount(5).SetMessageID(meta.MessageID("t_", token, kernelID, "n2"))
			in.AddCacheData(cache.NewData(table.Empty(), md), md.MessageID(), true)
			total, err := k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(7))
		})

		It("should fail on a count message without a partition count", func() {
			k.SendTotalPartitionCounts("t_", "", 0)
			for _, peer := range []string{"n1", "n2"} {
				md := meta.NewMetadata().SetMessageID(meta.MessageID("t_", token, kernelID, peer))
				in.AddCacheData(cache.NewData(table.Empty(), md), md.MessageID(), true)
			}
			_, err := k.GetTotalPartitionCounts(context.Background(), 0)
			Expect(err).To(HaveOccurred())
			// one pull failed (and consumed its entry); release what is left
			for in.Len() > 0 {
				d, err := in.Pull(context.Background())
				Expect(err).NotTo(HaveOccurred())
				d.Release()
			}
		})
	})
})

// routes AddToCache by key into a registry
type routedCache struct {
	cache.Machine
	reg *cache.Registry
}

func (r *routedCache) AddToCache(tbl *table.Table, key string, alwaysAdd bool) bool {
	return r.reg.GetOrCreate(key).AddToCache(tbl, key, alwaysAdd)
}

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
	"github.com/shxinding/blazingsql/transport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"
)

type node struct {
	mm     *memsys.MMSA
	input  *cache.Mem
	out    *cache.Mem
	caches *cache.Registry
	lis    *transport.Listener
	ep     *transport.LoopbackEndpoint
	k      *shuffle.Kernel
}

func (n *node) close() {
	n.out.Close()
	Expect(n.ep.Close()).To(Succeed())
	n.lis.Close()
	n.input.Close()
	n.caches.Close()
}

func newCluster(ctx context.Context, num int, opts ...shuffle.Option) []*node {
	smap, snodes := newSmap(num)
	var (
		lb    = transport.NewLoopback()
		ids   = transport.NewCounter(1)
		nodes = make([]*node, num)
	)
	for i, snode := range snodes {
		n := &node{
			mm:     memsys.NewTestMMSA(snode.ID()),
			input:  cache.NewMem("input"),
			out:    cache.NewMem("output"),
			caches: cache.NewRegistry(),
		}
		n.lis = transport.NewListener(smap, &transport.CacheRouter{Caches: n.caches, Input: n.input}, n.mm, nil)
		n.ep = lb.Endpoint(snode, n.lis)
		snd, err := transport.NewSender(smap, snode, ids, n.ep, n.out, nil)
		Expect(err).NotTo(HaveOccurred())
		go snd.Run(ctx)

		qctx, err := shuffle.NewContext(token, smap, snode)
		Expect(err).NotTo(HaveOccurred())
		n.k = shuffle.NewKernel(kernelID, qctx, n.input, n.out, append(opts, shuffle.WithMem(n.mm))...)
		n.k.SetNumberOfMessageTrackers(1)
		nodes[i] = n
	}
	return nodes
}

var _ = Describe("Partition count exchange", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		nodes  []*node
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	})

	AfterEach(func() {
		cancel()
		for _, n := range nodes {
			n.close()
		}
	})

	It("should agree on the total on every node", func() {
		nodes = newCluster(ctx, 3)
		counts := []int{2, 5, 1}
		for i, n := range nodes {
			for range counts[i] {
				for _, id := range []string{"n0", "n1", "n2"} {
					n.k.IncrementNodeCount(id, 0)
				}
			}
		}
		g, gctx := errgroup.WithContext(ctx)
		totals := make([]int, len(nodes))
		for i, n := range nodes {
			g.Go(func() error {
				if err := n.k.SendTotalPartitionCounts("cnt_", "", 0); err != nil {
					return err
				}
				total, err := n.k.GetTotalPartitionCounts(gctx, 0)
				totals[i] = total
				return err
			})
		}
		Expect(g.Wait()).To(Succeed())
		Expect(totals).To(Equal([]int{8, 8, 8}))
		for _, n := range nodes {
			Expect(n.input.Len()).To(BeZero())
			Eventually(n.lis.Pending).Should(BeZero())
		}
	})

	It("should time out while peers are silent and succeed once they speak", func() {
		nodes = newCluster(ctx, 3, shuffle.WithPullTimeout(100*time.Millisecond), shuffle.WithConcurrentPulls(true))
		counts := []int{2, 5, 1}
		for i, n := range nodes {
			for range counts[i] {
				for _, id := range []string{"n0", "n1", "n2"} {
					n.k.IncrementNodeCount(id, 0)
				}
			}
		}
		n0 := nodes[0]
		Expect(n0.k.SendTotalPartitionCounts("cnt_", "", 0)).To(Succeed())
		Expect(nodes[1].k.SendTotalPartitionCounts("cnt_", "", 0)).To(Succeed())

		Eventually(n0.input.Len).Should(Equal(1))
		_, err := n0.k.GetTotalPartitionCounts(ctx, 0)
		Expect(err).To(HaveOccurred())
		Expect(n0.k.WaitList(0)).To(Equal([]string{meta.MessageID("cnt_", token, kernelID, "n2")}))

		Expect(nodes[2].k.SendTotalPartitionCounts("cnt_", "", 0)).To(Succeed())
		total, err := n0.k.GetTotalPartitionCounts(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(8))
	})

	It("should conserve partitions across a scatter", func() {
		nodes = newCluster(ctx, 3, shuffle.WithConcurrentPulls(true))
		g, gctx := errgroup.WithContext(ctx)
		totals := make([]int, len(nodes))
		for i, n := range nodes {
			g.Go(func() error {
				tbl := newTable(n.mm, int64(i*9), int64(i*9+9))
				defer tbl.Release()
				parts := []table.View{tbl.Slice(0, 3), tbl.Slice(3, 6), tbl.Slice(6, 9)}
				if err := n.k.Scatter(parts, n.caches.GetOrCreate("scatter"), "s_", "scatter", 0); err != nil {
					return err
				}
				if err := n.k.SendTotalPartitionCounts("cnt_", "", 0); err != nil {
					return err
				}
				total, err := n.k.GetTotalPartitionCounts(gctx, 0)
				totals[i] = total
				return err
			})
		}
		Expect(g.Wait()).To(Succeed())
		Expect(totals).To(Equal([]int{3, 3, 3}))

		for i, n := range nodes {
			scattered := n.caches.GetOrCreate("scatter")
			Eventually(scattered.Len).Should(Equal(3))
			var rows []int64
			for range 3 {
				d, err := scattered.Pull(ctx)
				Expect(err).NotTo(HaveOccurred())
				rows = append(rows, keysOf(d.Table)...)
				d.Release()
			}
			// node i holds rows [3i, 3i+3) of every node's table
			Expect(rows).To(ConsistOf(
				int64(3*i), int64(3*i+1), int64(3*i+2),
				int64(9+3*i), int64(9+3*i+1), int64(9+3*i+2),
				int64(18+3*i), int64(18+3*i+1), int64(18+3*i+2),
			))
		}
	})
})

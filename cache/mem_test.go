// Package cache_test provides tests for the cache package
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cache_test

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shxinding/blazingsql/cache"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"

	"github.com/apache/arrow/go/v8/arrow/array"
	"github.com/apache/arrow/go/v8/arrow/memory"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTable(vals ...int64) *table.Table {
	tbl, err := table.Build(memory.DefaultAllocator, table.Column{Name: "v", Values: vals})
	Expect(err).NotTo(HaveOccurred())
	return tbl
}

func firstValue(d *cache.Data) int64 {
	return d.Table.Column(0).(*array.Int64).Value(0)
}

var _ = Describe("Mem", func() {
	var (
		c   *cache.Mem
		ctx context.Context
	)

	BeforeEach(func() {
		c = cache.NewMem("test")
		ctx = context.Background()
	})

	AfterEach(func() {
		c.Close()
	})

	It("should take ownership of added tables", func() {
		tbl := newTable(1)
		Expect(c.AddToCache(tbl, "k", true)).To(BeTrue())
		Expect(tbl.Valid()).To(BeFalse())

		d, err := c.PullCacheData(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.MD).To(BeNil())
		Expect(d.Key()).To(Equal("k"))
		Expect(firstValue(d)).To(Equal(int64(1)))
		d.Release()
	})

	It("should keep metadata of cache data", func() {
		md := meta.NewMetadata().SetMessageID("m1").SetPartitionCount(3)
		Expect(c.AddCacheData(cache.NewData(newTable(7), md), "m1", true)).To(BeTrue())

		d, err := c.PullCacheData(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		n, err := d.Metadata().PartitionCount()
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(3)))
		d.Release()
	})

	It("should drop duplicates unless always-add", func() {
		Expect(c.AddToCache(newTable(1), "k", false)).To(BeTrue())
		Expect(c.AddToCache(newTable(2), "k", false)).To(BeFalse())
		Expect(c.AddToCache(newTable(3), "k", true)).To(BeTrue())
		Expect(c.Len()).To(Equal(2))

		// FIFO per key
		d, err := c.PullCacheData(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(firstValue(d)).To(Equal(int64(1)))
		d, err = c.PullCacheData(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(firstValue(d)).To(Equal(int64(3)))
	})

	It("should pull in FIFO order across keys", func() {
		for i := range 5 {
			c.AddToCache(newTable(int64(i)), "k"+strconv.Itoa(i), true)
		}
		for i := range 5 {
			d, err := c.Pull(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(firstValue(d)).To(Equal(int64(i)))
		}
		Expect(c.Len()).To(BeZero())
	})

	It("should block until the key arrives", func() {
		got := make(chan *cache.Data, 1)
		go func() {
			defer GinkgoRecover()
			d, err := c.PullCacheData(ctx, "late")
			Expect(err).NotTo(HaveOccurred())
			got <- d
		}()

		c.AddToCache(newTable(1), "other", true)
		Consistently(got, 100*time.Millisecond).ShouldNot(Receive())

		c.AddToCache(newTable(2), "late", true)
		var d *cache.Data
		Eventually(got).Should(Receive(&d))
		Expect(firstValue(d)).To(Equal(int64(2)))
		Expect(c.Len()).To(Equal(1))
	})

	It("should honor context cancellation", func() {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := c.PullCacheData(cctx, "never")
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("should wake pullers on close", func() {
		errCh := make(chan error, 1)
		go func() {
			_, err := c.Pull(ctx)
			errCh <- err
		}()
		time.Sleep(20 * time.Millisecond)
		c.Close()
		Eventually(errCh).Should(Receive(MatchError(cache.ErrClosed)))
		Expect(c.AddToCache(newTable(1), "k", true)).To(BeFalse())
	})

	It("should serve many concurrent pushers and pullers", func() {
		const n = 200
		var wg sync.WaitGroup
		sum := make(chan int64, n)
		for i := range n {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				c.AddToCache(newTable(int64(i)), "k"+strconv.Itoa(i%10), true)
			}(i)
			go func(i int) {
				defer wg.Done()
				defer GinkgoRecover()
				d, err := c.PullCacheData(ctx, "k"+strconv.Itoa(i%10))
				Expect(err).NotTo(HaveOccurred())
				sum <- firstValue(d)
				d.Release()
			}(i)
		}
		wg.Wait()
		close(sum)
		var total int64
		for v := range sum {
			total += v
		}
		Expect(total).To(Equal(int64(n * (n - 1) / 2)))
	})
})

var _ = Describe("Registry", func() {
	It("should create caches on first use", func() {
		r := cache.NewRegistry()
		defer r.Close()
		a := r.GetOrCreate("output_0")
		Expect(r.GetOrCreate("output_0")).To(BeIdenticalTo(a))
		Expect(r.Get("output_1")).To(BeNil())
		r.Put(cache.NewMem("input"))
		Expect(r.Names()).To(Equal([]string{"input", "output_0"}))
	})
})

/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/shxinding/blazingsql/cache"
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"
	"github.com/shxinding/blazingsql/memsys"
	"github.com/shxinding/blazingsql/shuffle"
	"github.com/shxinding/blazingsql/stats"
	"github.com/shxinding/blazingsql/tracing"
	"github.com/shxinding/blazingsql/transport"
	"github.com/shxinding/blazingsql/transport/natsep"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	kernelID  = 1
	scatterPf = "scatter_"
	countsPf  = "counts_"
)

type (
	simNode struct {
		snode   *meta.Snode
		mm      *memsys.MMSA
		input   *cache.Mem
		out     *cache.Mem
		caches  *cache.Registry
		lis     *transport.Listener
		ep      transport.Endpoint
		snd     *transport.Sender
		tracker *stats.Tracker
	}
	cluster struct {
		smap  *meta.Smap
		nodes []*simNode
		token string
	}
	result struct {
		node    string
		total   int // agreed partition count
		entries int // tables found in the slot caches
		rows    int64
	}
	// self partitions land in the slot cache named by the key
	slotCaches struct {
		cache.Machine
		reg *cache.Registry
	}
)

func (r result) String() string {
	return fmt.Sprintf("%s: %d partition%s, %d rows", r.node, r.total, cos.Plural(r.total), r.rows)
}

func (s *slotCaches) AddToCache(tbl *table.Table, key string, alwaysAdd bool) bool {
	return s.reg.GetOrCreate(key).AddToCache(tbl, key, alwaysAdd)
}

func newCluster(config *cmn.Config, num int) (*cluster, error) {
	var (
		snodes = make(meta.Nodes, num)
		lns    = make([]net.Listener, num)
		conf   = &config.Transport
	)
	for i := range snodes {
		url := fmt.Sprintf("sim://n%d", i)
		if conf.Endpoint == cmn.EndpointHTTP {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return nil, err
			}
			lns[i], url = ln, "http://"+ln.Addr().String()
		}
		snodes[i] = meta.NewSnode(fmt.Sprintf("n%d", i), url)
	}
	smap, err := meta.NewSmap(snodes...)
	if err != nil {
		return nil, err
	}
	tracing.Init(&config.Tracing, snodes[0], cmn.VersionXchg)

	c := &cluster{smap: smap, token: cos.GenUUID()}
	lb := transport.NewLoopback()
	ids := transport.NewCounter(1)
	for i, snode := range snodes {
		mm, err := memsys.NewMMSA(snode.ID(), &config.Memsys)
		if err != nil {
			c.close()
			return nil, err
		}
		n := &simNode{
			snode:   snode,
			mm:      mm,
			input:   cache.NewMem("input"),
			out:     cache.NewMem("output"),
			caches:  cache.NewRegistry(),
			tracker: stats.NewTracker(config.Metrics.Namespace, snode.ID()),
		}
		c.nodes = append(c.nodes, n)
		n.lis = transport.NewListener(smap, &transport.CacheRouter{Caches: n.caches, Input: n.input}, n.mm, n.tracker)
		switch conf.Endpoint {
		case cmn.EndpointLoopback:
			n.ep = lb.Endpoint(snode, n.lis)
		case cmn.EndpointHTTP:
			ep := transport.NewHTTPEndpoint(snode, conf.HTTPPath, nil)
			go func(ln net.Listener) {
				if err := ep.Serve(ln, n.lis); err != nil {
					nlog.Errorln(snode.String(), "serve:", err)
				}
			}(lns[i])
			n.ep = ep
		case cmn.EndpointNATS:
			ep, err := natsep.Connect(conf.NATSURL, snode, n.lis)
			if err != nil {
				c.close()
				return nil, err
			}
			n.ep = ep
		default:
			c.close()
			return nil, fmt.Errorf("unknown transport endpoint %q", conf.Endpoint)
		}
		if n.snd, err = transport.NewSender(smap, snode, ids, n.ep, n.out, n.tracker); err != nil {
			c.close()
			return nil, err
		}
	}
	nlog.Infof("cluster %s: %s over %s", c.token, smap, conf.Endpoint)
	return c, nil
}

func (c *cluster) close() {
	errs := cos.NewErrs()
	for _, n := range c.nodes {
		n.out.Close()
		if n.ep != nil {
			if err := n.ep.Close(); err != nil {
				errs.Add(errors.Wrap(err, n.snode.String()))
			}
		}
		n.lis.Close()
		n.input.Close()
		n.caches.Close()
	}
	if cnt, _ := errs.JoinErr(); cnt > 0 {
		nlog.Warningln("close:", errs.Error())
	}
	tracing.Shutdown()
}

func (c *cluster) run(ctx context.Context, parts, rows int) ([]result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, n := range c.nodes {
		go n.snd.Run(ctx)
	}

	results := make([]result, len(c.nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range c.nodes {
		g.Go(func() (err error) {
			results[i], err = c.runNode(gctx, n, i, parts, rows)
			return errors.Wrap(err, n.snode.String())
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, r := range results {
		total += r.rows
	}
	if want := int64(rows) * int64(len(c.nodes)); total != want {
		return results, fmt.Errorf("rows not conserved: %d != %d", total, want)
	}
	return results, nil
}

func (c *cluster) runNode(ctx context.Context, n *simNode, idx, parts, rows int) (res result, err error) {
	res.node = n.snode.ID()
	qctx, err := shuffle.NewContext(c.token, c.smap, n.snode)
	if err != nil {
		return res, err
	}
	k := shuffle.NewKernel(kernelID, qctx, n.input, n.out, shuffle.WithMem(n.mm), shuffle.WithStats(n.tracker))
	k.SetNumberOfMessageTrackers(1)

	tbls, err := partition(n.mm, int64(idx*rows), rows, qctx.TotalNodes()*parts)
	if err != nil {
		return res, err
	}
	ncvs := make([]shuffle.NodeColumnView, len(tbls))
	for i, tbl := range tbls {
		ncvs[i] = shuffle.NodeColumnView{Node: c.smap.Nodes[i/parts], View: tbl.View()}
	}
	err = k.ScatterNodeColumnViews(ncvs, &slotCaches{reg: n.caches}, scatterPf, 0)
	for _, tbl := range tbls {
		tbl.Release()
	}
	if err != nil {
		return res, err
	}

	if err := k.SendTotalPartitionCounts(countsPf, "", 0); err != nil {
		return res, err
	}
	if res.total, err = k.GetTotalPartitionCounts(ctx, 0); err != nil {
		return res, err
	}

	// per-destination streams are FIFO: data precedes the sender's count
	for s := range parts {
		slot := n.caches.GetOrCreate(shuffle.SlotCacheID(s, parts))
		for range slot.Len() {
			d, err := slot.Pull(ctx)
			if err != nil {
				return res, err
			}
			res.entries++
			res.rows += d.Table.NumRows()
			d.Release()
		}
	}
	if res.entries != res.total {
		return res, fmt.Errorf("expected %d partitions, found %d", res.total, res.entries)
	}
	return res, nil
}

// partition hash-partitions keys [from, from+rows) into num tables
func partition(mm *memsys.MMSA, from int64, rows, num int) ([]*table.Table, error) {
	var (
		keys = make([][]int64, num)
		b    [8]byte
	)
	for key := from; key < from+int64(rows); key++ {
		binary.LittleEndian.PutUint64(b[:], uint64(key))
		i := xxhash.Checksum64(b[:]) % uint64(num)
		keys[i] = append(keys[i], key)
	}
	tbls := make([]*table.Table, 0, num)
	for _, ks := range keys {
		tbl, err := table.Build(mm, table.Column{Name: "key", Values: ks})
		if err != nil {
			for _, t := range tbls {
				t.Release()
			}
			return nil, err
		}
		tbls = append(tbls, tbl)
	}
	return tbls, nil
}

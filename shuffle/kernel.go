/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package shuffle

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shxinding/blazingsql/cache"
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/mono"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"
	"github.com/shxinding/blazingsql/stats"
	"github.com/shxinding/blazingsql/tracing"

	"github.com/apache/arrow/go/v8/arrow/memory"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// cache id of slot i in ScatterNodeColumnViews
const slotCachePrefix = "output_"

type (
	// Kernel distributes tables produced on this node. Messages go out through the
	// output message cache; count messages from peers come in through the input one.
	// Tracker-indexed state belongs to the kernel; use from one goroutine per tracker.
	Kernel struct {
		qctx     *Context
		in       cache.Machine
		out      cache.Machine
		mm       memory.Allocator
		stats    *stats.Tracker
		trackers []*msgTracker
		mu       sync.Mutex
		timeout  time.Duration
		id       int32
		parallel bool
	}

	// one counting/waiting domain
	msgTracker struct {
		counts  map[string]int // node id => partitions
		waitFor []string       // message ids
		got     map[int]int64  // wait-list index => pulled partition count
		total   int
		done    bool // total is current; cleared by anything that changes it
	}

	SendArgs struct {
		Extra     *meta.Metadata // merged last
		CacheID   string
		Prefix    string // message id prefix
		Targets   meta.NodeIDs
		TotalRows int64
		Tracker   int
		HasTotal  bool // TotalRows is set
		Specific  bool // land in the target's specific cache; counts toward the tracker
		AlwaysAdd bool
		WaitFor   bool // expect a matching message from every target
	}

	// NodeColumnView is a partition with its destination.
	NodeColumnView struct {
		Node *meta.Snode
		View table.View
	}

	Option func(*Kernel)
)

func WithMem(mm memory.Allocator) Option     { return func(k *Kernel) { k.mm = mm } }
func WithStats(t *stats.Tracker) Option      { return func(k *Kernel) { k.stats = t } }
func WithPullTimeout(d time.Duration) Option { return func(k *Kernel) { k.timeout = d } }
func WithConcurrentPulls(v bool) Option      { return func(k *Kernel) { k.parallel = v } }

// NewKernel takes pull timeout and concurrency from the shuffle config; options override.
func NewKernel(id int32, qctx *Context, in, out cache.Machine, opts ...Option) *Kernel {
	conf := &cmn.GCO.Get().Shuffle
	k := &Kernel{
		qctx:     qctx,
		in:       in,
		out:      out,
		mm:       memory.DefaultAllocator,
		id:       id,
		timeout:  conf.PullTimeout.D(),
		parallel: conf.ConcurrentPulls,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kernel) ID() int32         { return k.id }
func (k *Kernel) Context() *Context { return k.qctx }
func (k *Kernel) String() string {
	return "kernel[" + strconv.Itoa(int(k.id)) + "@" + k.qctx.self.ID() + "]"
}

// SetNumberOfMessageTrackers discards all tracker state.
func (k *Kernel) SetNumberOfMessageTrackers(n int) {
	cos.Assertf(n >= 0, "invalid number of trackers %d", n)
	k.mu.Lock()
	k.trackers = make([]*msgTracker, n)
	for i := range k.trackers {
		k.trackers[i] = &msgTracker{counts: make(map[string]int, 4)}
	}
	k.mu.Unlock()
}

// under lock
func (k *Kernel) tracker(idx int) *msgTracker {
	cos.Assertf(idx >= 0 && idx < len(k.trackers), "%s: tracker %d out of range [0, %d)", k, idx, len(k.trackers))
	return k.trackers[idx]
}

func (k *Kernel) track(args *SendArgs) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.tracker(args.Tracker)
	if args.WaitFor || args.Specific {
		t.done = false
	}
	for _, target := range args.Targets {
		if args.WaitFor {
			t.waitFor = append(t.waitFor, k.msgID(args.Prefix, target))
		}
		if args.Specific {
			t.counts[target]++
		}
	}
}

func (k *Kernel) msgID(prefix, sender string) string {
	return meta.MessageID(prefix, k.qctx.token, k.id, sender)
}

// SendMessage pushes one logical message into the output cache and returns its id.
// A nil table sends an empty placeholder (metadata only). tbl is moved.
func (k *Kernel) SendMessage(tbl *table.Table, args *SendArgs) (string, error) {
	self := k.qctx.self.ID()
	if args.Targets.Len() == 0 {
		tbl.Release()
		return "", fmt.Errorf("%s: no targets", k)
	}
	if _, err := k.qctx.smap.Resolve(args.Targets); err != nil {
		tbl.Release()
		return "", err
	}
	msgID := k.msgID(args.Prefix, self)
	md := meta.NewMetadata().
		SetKernelID(k.id).
		SetQueryID(k.qctx.token).
		SetSpecificCache(args.Specific).
		SetCacheID(args.CacheID).
		SetSenderID(self).
		SetWorkerIDs(args.Targets).
		SetMessageID(msgID)
	if args.HasTotal {
		md.SetTotalRows(args.TotalRows)
	}
	md.Merge(args.Extra)

	if args.WaitFor || args.Specific {
		k.track(args)
	}
	if tbl == nil {
		tbl = table.Empty()
	}
	k.out.AddCacheData(cache.NewData(tbl, md), msgID, args.AlwaysAdd)
	if cmn.Rom.FastV(4, cos.SmoduleShuffle) {
		nlog.Infof("%s: %q => %s (specific %t, cache %q)", k, msgID, args.Targets.Wire(), args.Specific, args.CacheID)
	}
	return msgID, nil
}

// Broadcast sends one clone of the view to all other nodes in a single message.
func (k *Kernel) Broadcast(view table.View, _ cache.Machine, prefix, cacheID string, tracker int) error {
	others := k.qctx.AllOtherNodes(k.qctx.selfIdx)
	if len(others) == 0 {
		return nil
	}
	clone, err := view.Clone(k.mm)
	if err != nil {
		return err
	}
	_, err = k.SendMessage(clone, &SendArgs{
		Specific:  true,
		CacheID:   cacheID,
		Targets:   others.IDs(),
		Prefix:    prefix,
		AlwaysAdd: true,
		Tracker:   tracker,
	})
	return err
}

// Scatter sends partition i to node i, keeping (a clone of) its own in output.
func (k *Kernel) Scatter(parts []table.View, output cache.Machine, prefix, cacheID string, tracker int) error {
	nodes := k.qctx.AllNodes()
	cos.Assertf(len(parts) == len(nodes), "%s: scatter %d partitions over %d nodes", k, len(parts), len(nodes))
	for i, node := range nodes {
		clone, err := parts[i].Clone(k.mm)
		if err != nil {
			return err
		}
		if node.Equals(k.qctx.self) {
			output.AddToCache(clone, prefix, true)
			k.IncrementNodeCount(node.ID(), tracker)
			continue
		}
		_, err = k.SendMessage(clone, &SendArgs{
			Specific:  true,
			CacheID:   cacheID,
			Targets:   meta.NodeIDs{node.ID()},
			Prefix:    prefix,
			AlwaysAdd: true,
			Tracker:   tracker,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SlotCacheID names the downstream cache of partition position i.
func SlotCacheID(i, perNode int) string { return slotCachePrefix + strconv.Itoa(i%perNode) }

// ScatterNodeColumnViews sends each non-empty partition to its node, into the cache of
// its slot (position modulo partitions per node). Own partitions go into output.
func (k *Kernel) ScatterNodeColumnViews(parts []NodeColumnView, output cache.Machine, prefix string, tracker int) error {
	perNode := len(parts) / k.qctx.TotalNodes()
	cos.Assertf(perNode > 0, "%s: %d partitions for %d nodes", k, len(parts), k.qctx.TotalNodes())

	for i := range parts {
		p := &parts[i]
		if p.Node.Equals(k.qctx.self) || p.View.NumRows() == 0 {
			continue
		}
		clone, err := p.View.Clone(k.mm)
		if err != nil {
			return err
		}
		_, err = k.SendMessage(clone, &SendArgs{
			Specific:  true,
			CacheID:   SlotCacheID(i, perNode),
			Targets:   meta.NodeIDs{p.Node.ID()},
			Prefix:    prefix,
			AlwaysAdd: true,
			Tracker:   tracker,
		})
		if err != nil {
			return err
		}
	}
	for i := range parts {
		p := &parts[i]
		if !p.Node.Equals(k.qctx.self) || p.View.NumRows() == 0 {
			continue
		}
		clone, err := p.View.Clone(k.mm)
		if err != nil {
			return err
		}
		output.AddToCache(clone, SlotCacheID(i, perNode), true)
		k.IncrementNodeCount(p.Node.ID(), tracker)
	}
	return nil
}

func (k *Kernel) IncrementNodeCount(nodeID string, tracker int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.tracker(tracker)
	t.counts[nodeID]++
	t.done = false
}

func (k *Kernel) NodeCount(tracker int, nodeID string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tracker(tracker).counts[nodeID]
}

// WaitList returns the message ids the tracker still has to pull.
func (k *Kernel) WaitList(tracker int) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.tracker(tracker)
	ids := make([]string, 0, len(t.waitFor))
	for i, id := range t.waitFor {
		if _, ok := t.got[i]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// SendTotalPartitionCounts tells every other node how many partitions this node
// sent it under the tracker, and adds their replies to the wait-list.
func (k *Kernel) SendTotalPartitionCounts(prefix, cacheID string, tracker int) error {
	for _, node := range k.qctx.AllOtherNodes(k.qctx.selfIdx) {
		cnt := k.NodeCount(tracker, node.ID())
		extra := meta.NewMetadata().SetPartitionCount(int64(cnt))
		_, err := k.SendMessage(nil, &SendArgs{
			Specific:  false,
			CacheID:   cacheID,
			Targets:   meta.NodeIDs{node.ID()},
			Prefix:    prefix,
			AlwaysAdd: true,
			WaitFor:   true,
			Tracker:   tracker,
			Extra:     extra,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetTotalPartitionCounts returns the local count plus the counts carried by every
// awaited message, blocking until all have arrived. With a zero pull timeout it waits
// as long as ctx allows. Pulled counts survive a failed call; the total is memoized
// until more partitions are counted or more messages are awaited.
func (k *Kernel) GetTotalPartitionCounts(ctx context.Context, tracker int) (total int, err error) {
	k.mu.Lock()
	if tracker < 0 || tracker >= len(k.trackers) {
		k.mu.Unlock()
		cos.Assertf(false, "%s: tracker %d out of range [0, %d)", k, tracker, len(k.trackers))
	}
	t := k.trackers[tracker]
	if t.done {
		total = t.total
		k.mu.Unlock()
		return total, nil
	}
	var (
		local = t.counts[k.qctx.self.ID()]
		waits = make(map[int]string, len(t.waitFor))
	)
	for i, id := range t.waitFor {
		if _, ok := t.got[i]; !ok {
			waits[i] = id
		}
	}
	k.mu.Unlock()

	ctx, end := tracing.StartSpan(ctx, "xchg.partition_counts", tracing.A("kernel", strconv.Itoa(int(k.id))),
		tracing.A("tracker", strconv.Itoa(tracker)))
	defer func() { end(err) }()
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	started := mono.NanoTime()
	if k.parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, id := range waits {
			g.Go(func() error { return k.pullCount(gctx, t, i, id) })
		}
		err = g.Wait()
	} else {
		for i, id := range waits {
			if err = k.pullCount(ctx, t, i, id); err != nil {
				break
			}
		}
	}
	k.stats.Pulled(mono.Since(started))
	if err != nil {
		k.stats.Err(stats.ErrPull)
		return 0, err
	}

	k.mu.Lock()
	local = t.counts[k.qctx.self.ID()]
	total = local
	for _, cnt := range t.got {
		total += int(cnt)
	}
	t.total, t.done = total, len(t.got) == len(t.waitFor)
	k.mu.Unlock()

	k.stats.SetTotal(tracker, total)
	nlog.Infof("%s: tracker %d total partitions %d (local %d, awaited %d)", k, tracker, total, local, len(waits))
	return total, nil
}

func (k *Kernel) pullCount(ctx context.Context, t *msgTracker, i int, msgID string) error {
	d, err := k.in.PullCacheData(ctx, msgID)
	if err != nil {
		return errors.Wrapf(err, "%s: pull %q", k, msgID)
	}
	defer d.Release()
	if d.MD == nil {
		return cmn.NewErrMissingMetadata(meta.KeyPartitionCount.String(), msgID)
	}
	cnt, err := d.MD.PartitionCount()
	if err != nil {
		return err
	}
	k.mu.Lock()
	if t.got == nil {
		t.got = make(map[int]int64, len(t.waitFor))
	}
	t.got[i] = cnt
	k.mu.Unlock()
	if cmn.Rom.FastV(4, cos.SmoduleShuffle) {
		nlog.Infof("%s: %q carries %d partition%s", k, msgID, cnt, cos.Plural(int(cnt)))
	}
	return nil
}

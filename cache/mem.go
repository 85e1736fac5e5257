// Package cache provides the Cache Machine: a thread-safe, keyed FIFO of tables
// (with optional per-message metadata) that kernels and message receivers push
// into and downstream consumers pull from
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cache

import (
	"context"
	"sync"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/table"
)

// Mem is the in-memory Machine.
type Mem struct {
	name    string
	entries []*Data
	notify  chan struct{} // closed (and replaced) on every push
	mu      sync.Mutex
	closed  bool
}

// interface guard
var _ Machine = (*Mem)(nil)

func NewMem(name string) *Mem {
	return &Mem{name: name, notify: make(chan struct{})}
}

func (c *Mem) Name() string   { return c.name }
func (c *Mem) String() string { return "cache[" + c.name + "]" }

func (c *Mem) AddToCache(tbl *table.Table, key string, alwaysAdd bool) bool {
	return c.add(&Data{Table: tbl.Move()}, key, alwaysAdd)
}

func (c *Mem) AddCacheData(d *Data, key string, alwaysAdd bool) bool {
	return c.add(d, key, alwaysAdd)
}

func (c *Mem) add(d *Data, key string, alwaysAdd bool) bool {
	d.key = key
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		nlog.Warningf("%s: closed, dropping %q", c, key)
		d.Release()
		return false
	}
	if !alwaysAdd && c.find(key) >= 0 {
		c.mu.Unlock()
		if cmn.Rom.FastV(4, cos.SmoduleCache) {
			nlog.Infof("%s: %q already pending, dropping", c, key)
		}
		d.Release()
		return false
	}
	c.entries = append(c.entries, d)
	close(c.notify)
	c.notify = make(chan struct{})
	c.mu.Unlock()

	if cmn.Rom.FastV(5, cos.SmoduleCache) {
		nlog.Infof("%s: added %q (%s)", c, key, d.Table)
	}
	return true
}

// under lock
func (c *Mem) find(key string) int {
	for i, d := range c.entries {
		if d.key == key {
			return i
		}
	}
	return -1
}

// under lock
func (c *Mem) remove(i int) (d *Data) {
	d = c.entries[i]
	copy(c.entries[i:], c.entries[i+1:])
	c.entries[len(c.entries)-1] = nil
	c.entries = c.entries[:len(c.entries)-1]
	return
}

func (c *Mem) PullCacheData(ctx context.Context, key string) (*Data, error) {
	return c.pull(ctx, func() int { return c.find(key) })
}

func (c *Mem) Pull(ctx context.Context) (*Data, error) {
	return c.pull(ctx, func() int {
		if len(c.entries) > 0 {
			return 0
		}
		return -1
	})
}

func (c *Mem) pull(ctx context.Context, lookup func() int) (*Data, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if i := lookup(); i >= 0 {
			d := c.remove(i)
			c.mu.Unlock()
			return d, nil
		}
		notify := c.notify
		c.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Mem) Len() int {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return n
}

// Close wakes all pullers with ErrClosed and releases pending entries.
func (c *Mem) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	entries := c.entries
	c.entries = nil
	close(c.notify)
	c.mu.Unlock()

	for _, d := range entries {
		d.Release()
	}
	if len(entries) > 0 {
		nlog.Warningf("%s: closed with %d pending entr%s", c, len(entries), pluralY(len(entries)))
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

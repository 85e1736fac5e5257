// Package shuffle implements the distributing kernel: send, broadcast and scatter of
// tables across the cluster, plus the coordinator-free partition count exchange.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package shuffle

import (
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/core/meta"
)

// Context is the query-scoped view of the cluster.
type Context struct {
	smap    *meta.Smap
	self    *meta.Snode
	token   string
	selfIdx int
}

func NewContext(token string, smap *meta.Smap, self *meta.Snode) (*Context, error) {
	idx := smap.NodeIndex(self)
	if idx < 0 {
		return nil, &cmn.ErrUnknownNode{ID: self.ID()}
	}
	return &Context{smap: smap, self: self, token: token, selfIdx: idx}, nil
}

func (c *Context) Token() string        { return c.token }
func (c *Context) Self() *meta.Snode    { return c.self }
func (c *Context) SelfIndex() int       { return c.selfIdx }
func (c *Context) Smap() *meta.Smap     { return c.smap }
func (c *Context) AllNodes() meta.Nodes { return c.smap.AllNodes() }
func (c *Context) TotalNodes() int      { return c.smap.CountNodes() }

func (c *Context) AllOtherNodes(selfIdx int) meta.Nodes { return c.smap.AllOtherNodes(selfIdx) }
func (c *Context) NodeIndex(node *meta.Snode) int       { return c.smap.NodeIndex(node) }

func (c *Context) String() string { return "qctx[" + c.token + "@" + c.self.ID() + "]" }

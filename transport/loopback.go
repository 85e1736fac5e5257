/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bytes"
	"sync"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/core/meta"
)

type (
	// Loopback is an in-process network: each node's endpoint delivers frames
	// straight into the destination node's sink.
	Loopback struct {
		sinks map[string]Sink
		mu    sync.RWMutex
	}
	LoopbackEndpoint struct {
		net  *Loopback
		node *meta.Snode
		sb   *StreamBundle
	}
)

// interface guard
var _ Endpoint = (*LoopbackEndpoint)(nil)

func NewLoopback() *Loopback { return &Loopback{sinks: make(map[string]Sink, 4)} }

// Endpoint attaches a node (and its sink) to the network.
func (lb *Loopback) Endpoint(node *meta.Snode, sink Sink) *LoopbackEndpoint {
	lb.mu.Lock()
	lb.sinks[node.ID()] = sink
	lb.mu.Unlock()
	e := &LoopbackEndpoint{net: lb, node: node}
	e.sb = NewStreamBundle("lo:"+node.ID(), cmn.Rom.Burst(), lb.xmit)
	return e
}

func (lb *Loopback) xmit(dst *meta.Snode, hdr *FrameHdr, payload []byte) error {
	lb.mu.RLock()
	sink := lb.sinks[dst.ID()]
	lb.mu.RUnlock()
	if sink == nil {
		return &cmn.ErrUnknownNode{ID: dst.ID()}
	}
	rhdr := *hdr
	rhdr.Size = int64(len(payload))
	return sink.RecvFrame(&rhdr, bytes.NewReader(payload))
}

func (lb *Loopback) detach(id string) {
	lb.mu.Lock()
	delete(lb.sinks, id)
	lb.mu.Unlock()
}

func (e *LoopbackEndpoint) Send(dst *meta.Snode, hdr *FrameHdr, payload []byte, cb SentCB) error {
	return e.sb.Send(dst, hdr, payload, cb)
}

func (e *LoopbackEndpoint) Stats() map[string]StreamStats { return e.sb.GetStats() }

// Close drains pending frames, then detaches the node.
func (e *LoopbackEndpoint) Close() error {
	err := e.sb.Close()
	e.net.detach(e.node.ID())
	return err
}

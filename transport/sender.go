/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/shxinding/blazingsql/cache"
	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/atomic"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/mono"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"
	"github.com/shxinding/blazingsql/core/table"
	"github.com/shxinding/blazingsql/stats"
	"github.com/shxinding/blazingsql/tracing"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

type (
	// Sender drains a node's output message cache into the endpoint.
	Sender struct {
		smap     *meta.Smap
		self     *meta.Snode
		ids      IDGen
		ep       Endpoint
		out      cache.Machine
		tracker  *stats.Tracker
		inflight map[int32]*target // uid => per-target transfer
		mu       sync.Mutex
		origin   int
		compress bool
	}

	// one entry fanned out to all its targets
	transfer struct {
		d       *cache.Data
		started int64
		pending atomic.Int32 // targets
	}
	target struct {
		xfer   *transfer
		node   *meta.Snode
		err    error
		frames int // remaining, under Sender.mu
	}
)

func NewSender(smap *meta.Smap, self *meta.Snode, ids IDGen, ep Endpoint, out cache.Machine, tracker *stats.Tracker) (*Sender, error) {
	origin := smap.NodeIndex(self)
	if origin < 0 {
		return nil, &cmn.ErrUnknownNode{ID: self.ID()}
	}
	cos.Assertf(origin <= 0xffff, "worker origin %d exceeds 16 bits", origin)
	return &Sender{
		smap:     smap,
		self:     self,
		ids:      ids,
		ep:       ep,
		out:      out,
		tracker:  tracker,
		inflight: make(map[int32]*target, 64),
		origin:   origin,
		compress: cmn.Rom.Compressed(),
	}, nil
}

func (s *Sender) String() string { return "sender[" + s.self.ID() + "]" }

// Pending returns the number of (message, target) transfers still in flight.
func (s *Sender) Pending() int {
	s.mu.Lock()
	n := len(s.inflight)
	s.mu.Unlock()
	return n
}

// Run sends every entry pulled from the output cache until ctx is done or the cache closes.
func (s *Sender) Run(ctx context.Context) error {
	for {
		d, err := s.out.Pull(ctx)
		if err != nil {
			if errors.Is(err, cache.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.Send(ctx, d); err != nil {
			s.tracker.Err(stats.ErrSend)
			nlog.Errorln(s.String(), "err:", err)
		}
	}
}

// Send encodes the entry once and fans it out to every node in its worker ids,
// each under a fresh message id. Takes ownership of d.
func (s *Sender) Send(ctx context.Context, d *cache.Data) (err error) {
	md := d.Metadata()
	if md == nil {
		d.Release()
		return fmt.Errorf("%s: entry %q has no metadata", s, d.Key())
	}
	nodes, err := s.smap.Resolve(md.WorkerIDs())
	if err != nil {
		d.Release()
		return errors.Wrapf(err, "message %q", md.MessageID())
	}
	if len(nodes) == 0 {
		d.Release()
		return fmt.Errorf("%s: message %q has no targets", s, md.MessageID())
	}
	_, end := tracing.StartSpan(ctx, "xchg.send", tracing.A("message_id", md.MessageID()),
		tracing.A("targets", md.WorkerIDs().Wire()))
	defer func() { end(err) }()

	cts, bufs, err := table.Encode(d.Table)
	if err != nil {
		d.Release()
		return errors.Wrapf(err, "message %q", md.MessageID())
	}
	if len(bufs) > MaxBuffers {
		d.Release()
		return fmt.Errorf("message %q: too many buffers (%d)", md.MessageID(), len(bufs))
	}
	sizes := make([]int64, len(bufs))
	for i, b := range bufs {
		sizes[i] = int64(len(b))
	}
	var (
		hdr      = EncodeHeader(cts, sizes, md.Wire())
		payloads = bufs
		flags    cos.BitFlags
	)
	if s.compress && len(bufs) > 0 {
		if payloads, err = compressAll(bufs); err != nil {
			d.Release()
			return err
		}
		flags = FlagCompressed
	}

	xfer := &transfer{d: d, started: mono.NanoTime()}
	xfer.pending.Store(int32(len(nodes)))
	for _, node := range nodes {
		tag := NewTag(s.ids.Next(), s.origin)
		s.mu.Lock()
		s.inflight[tag.MessageID] = &target{xfer: xfer, node: node, frames: 1 + len(bufs)}
		s.mu.Unlock()

		s.send(node, &FrameHdr{Tag: tag, SenderID: s.self.ID(), Size: int64(len(hdr)), RawSize: int64(len(hdr))}, hdr)
		for i, payload := range payloads {
			fhdr := &FrameHdr{
				Tag:      tag.Frame(i),
				SenderID: s.self.ID(),
				Size:     int64(len(payload)),
				RawSize:  sizes[i],
				Flags:    flags,
			}
			s.send(node, fhdr, payload)
		}
	}
	return nil
}

func (s *Sender) send(node *meta.Snode, hdr *FrameHdr, payload []byte) {
	if err := s.ep.Send(node, hdr, payload, s.sent); err != nil {
		s.sent(hdr, err)
	}
}

// SentCB
func (s *Sender) sent(hdr *FrameHdr, err error) {
	req := Request{Completed: 1, UID: hdr.Tag.MessageID}
	if err != nil {
		req.Completed = 0
		s.tracker.Err(stats.ErrSend)
	} else {
		s.tracker.FrameSent(hdr.Size)
	}
	s.complete(req, err)
}

func (s *Sender) complete(req Request, err error) {
	s.mu.Lock()
	tgt, ok := s.inflight[req.UID]
	if !ok {
		s.mu.Unlock()
		nlog.Warningf("%s: completion for unknown uid %d", s, req.UID)
		return
	}
	if err != nil && tgt.err == nil {
		tgt.err = err
	}
	tgt.frames--
	done := tgt.frames == 0
	if done {
		delete(s.inflight, req.UID)
	}
	s.mu.Unlock()
	if !done {
		return
	}

	xfer := tgt.xfer
	if tgt.err != nil {
		nlog.Errorf("%s: message %q => %s failed: %v", s, xfer.d.MD.MessageID(), tgt.node, tgt.err)
	} else {
		s.tracker.MsgSent()
		if cmn.Rom.FastV(4, cos.SmoduleTransport) {
			nlog.Infof("%s: message %q => %s done (%s)", s, xfer.d.MD.MessageID(), tgt.node, mono.Since(xfer.started))
		}
	}
	if xfer.pending.Dec() == 0 {
		xfer.d.Release()
	}
}

func compressAll(bufs [][]byte) ([][]byte, error) {
	out := make([][]byte, len(bufs))
	for i, b := range bufs {
		var (
			bb bytes.Buffer
			zw = lz4.NewWriter(&bb)
		)
		if _, err := zw.Write(b); err != nil {
			return nil, errors.Wrap(err, "lz4")
		}
		if err := zw.Close(); err != nil {
			return nil, errors.Wrap(err, "lz4")
		}
		out[i] = bb.Bytes()
	}
	return out, nil
}
